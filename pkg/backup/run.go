package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Syncer synchronises a single repository, it is implemented by *Engine
type Syncer interface {
	Sync(ctx context.Context, repo *Repository) (bool, error)
}

// Coordinator runs a Syncer over every repository of an iterator and
// aggregates the outcome into a Summary.
type Coordinator struct {
	syncer Syncer
	log    *slog.Logger
	now    func() time.Time
}

// NewCoordinator returns a Coordinator using given syncer
func NewCoordinator(syncer Syncer, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{syncer: syncer, log: log, now: time.Now}
}

// Run syncs repositories one at a time in iteration order.
// A failed repository is logged and counted, it does not stop the run.
// An enumeration error stops the run and is returned wrapped in
// ErrEnumeration. The summary is always returned and logged, also on error.
func (c *Coordinator) Run(ctx context.Context, repos RepositoryIterator) (*Summary, error) {
	summary := &Summary{Started: c.now()}
	c.log.Info("backup started", "time", summary.Started.Format(time.RFC3339))

	err := c.run(ctx, repos, summary)
	summary.Aborted = err != nil

	summary.Elapsed = c.now().Sub(summary.Started)
	recordRun(summary)
	c.logSummary(summary, err)

	return summary, err
}

func (c *Coordinator) run(ctx context.Context, repos RepositoryIterator, summary *Summary) error {
	yielded := 0
	for {
		if err := ctx.Err(); err != nil {
			summary.discover(yielded, repos.Total())
			return err
		}

		repo, err := repos.Next(ctx)
		switch {
		case errors.Is(err, ErrIterationDone):
			summary.discover(yielded, repos.Total())
			return nil
		case err != nil:
			summary.discover(yielded, repos.Total())
			return fmt.Errorf("%w: %w", ErrEnumeration, err)
		}

		yielded++
		summary.discover(yielded, repos.Total())

		updated, err := c.syncer.Sync(ctx, repo)
		summary.Processed++
		if err != nil {
			summary.Failed++
			c.log.Error("repository backup failed",
				"repo", repo.FullName(), "visibility", repo.Visibility(), "action", ActionFailed, "err", err)
			continue
		}
		if updated {
			summary.Updated++
		}
	}
}

func (c *Coordinator) logSummary(summary *Summary, err error) {
	attrs := []any{
		"status", summary.Status(),
		"discovered", summary.Discovered,
		"processed", summary.Processed,
		"updated", summary.Updated,
		"failed", summary.Failed,
		"elapsed-seconds", fmt.Sprintf("%.2f", summary.Elapsed.Seconds()),
	}
	if err != nil {
		attrs = append(attrs, "err", err)
	}

	if summary.Complete() {
		c.log.Info("backup complete", attrs...)
		return
	}
	c.log.Warn("backup incomplete", attrs...)
}
