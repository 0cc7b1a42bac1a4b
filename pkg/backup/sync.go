package backup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/utilitywarehouse/github-backup/pkg/giturl"
)

// DetectMode selects how an existing mirror decides whether the remote had
// new content.
type DetectMode string

const (
	// DetectFetch runs the real fetch and uses its porcelain output.
	DetectFetch DetectMode = "fetch"
	// DetectProbe runs `git fetch --dry-run` first and only fetches if the
	// probe reported changes. the real fetch output still decides the outcome.
	DetectProbe DetectMode = "probe"
)

// Action is the terminal state of a single repository sync
type Action string

const (
	ActionCloned    Action = "cloned"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionFailed    Action = "failed"
)

// Engine synchronises a single repository with its local mirror.
type Engine struct {
	store   *Store
	runner  CommandRunner
	token   string        // access token embedded in https remote urls
	mode    DetectMode    // change detection for existing mirrors
	timeout time.Duration // total time allowed for one repository, 0 means no limit
	log     *slog.Logger
}

// EngineOption configures optional Engine behaviour
type EngineOption func(*Engine)

// WithDetectMode sets the change detection mode, default is DetectFetch
func WithDetectMode(mode DetectMode) EngineOption {
	return func(e *Engine) {
		e.mode = mode
	}
}

// WithTimeout limits the time allowed to sync one repository
func WithTimeout(timeout time.Duration) EngineOption {
	return func(e *Engine) {
		e.timeout = timeout
	}
}

// NewEngine creates an Engine storing mirrors in the given store and running
// git via runner.
func NewEngine(store *Store, runner CommandRunner, token string, log *slog.Logger, opts ...EngineOption) (*Engine, error) {
	if store == nil || runner == nil {
		return nil, fmt.Errorf("store and runner are required")
	}
	if log == nil {
		log = slog.Default()
	}

	e := &Engine{
		store:  store,
		runner: runner,
		token:  token,
		mode:   DetectFetch,
		log:    log,
	}
	for _, opt := range opts {
		opt(e)
	}

	switch e.mode {
	case DetectFetch, DetectProbe:
	default:
		return nil, fmt.Errorf("wrong detect mode provided, must be one of %s, %s", DetectFetch, DetectProbe)
	}

	if e.timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}

	return e, nil
}

// Sync clones the repository if it has no local mirror yet, otherwise it
// updates the existing mirror. It returns true if the mirror received new
// content, a fresh clone always counts as new content.
func (e *Engine) Sync(ctx context.Context, repo *Repository) (bool, error) {
	start := time.Now()

	action, refs, err := e.sync(ctx, repo)
	if err != nil {
		recordSync(repo.FullName(), ActionFailed, start)
		return false, err
	}
	recordSync(repo.FullName(), action, start)

	e.log.Info("repository backed up",
		"repo", repo.FullName(), "visibility", repo.Visibility(), "action", action,
		"updated-refs", len(refs), "time", time.Since(start))

	return action != ActionUnchanged, nil
}

func (e *Engine) sync(ctx context.Context, repo *Repository) (Action, []string, error) {
	path, err := e.store.Path(repo)
	if err != nil {
		return ActionFailed, nil, err
	}

	remote, err := giturl.WithCredentials(repo.CloneURL, e.token)
	if err != nil {
		return ActionFailed, nil, fmt.Errorf("unable to build remote url repo:%s err:%w", repo.FullName(), err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	log := e.log.With("repo", repo.FullName())

	exists, err := e.store.Exists(path)
	if err != nil {
		return ActionFailed, nil, err
	}

	if exists {
		// git clone accepts an existing empty directory
		empty, err := e.store.IsEmpty(path)
		if err != nil {
			return ActionFailed, nil, err
		}
		if empty {
			log.Warn("mirror directory is empty, cloning again", "path", path)
			exists = false
		}
	}

	if !exists {
		if err := e.clone(ctx, log, repo, path, remote); err != nil {
			return ActionFailed, nil, err
		}
		return ActionCloned, nil, nil
	}

	if err := e.sanityCheck(ctx, log, repo, path); err != nil {
		return ActionFailed, nil, err
	}

	refs, err := e.update(ctx, log, repo, path, remote)
	if err != nil {
		return ActionFailed, nil, err
	}
	if len(refs) == 0 {
		return ActionUnchanged, nil, nil
	}
	return ActionUpdated, refs, nil
}

// clone creates a new mirror of the remote at path
func (e *Engine) clone(ctx context.Context, log *slog.Logger, repo *Repository, path, remote string) error {
	parent := filepath.Dir(path)
	if err := e.store.EnsureDirectory(parent); err != nil {
		return err
	}

	log.Debug("repo directory does not exist, creating mirror clone", "path", path)
	// git clone --mirror --no-progress <remote> <path>
	_, err := e.git(ctx, repo, "clone", parent, "clone", "--mirror", "--no-progress", remote, path)
	return err
}

// sanityCheck makes sure the existing mirror directory is a bare repository
// and not a leftover of an interrupted clone or an unrelated directory
func (e *Engine) sanityCheck(ctx context.Context, log *slog.Logger, repo *Repository, path string) error {
	// git rev-parse --is-bare-repository
	res, err := e.runner.Run(ctx, path, "rev-parse", "--is-bare-repository")
	if err != nil {
		return &TransferError{Repo: repo.FullName(), Op: "sanity", ExitCode: -1, Err: err}
	}
	if res.ExitCode != 0 || res.Stdout != "true" {
		return fmt.Errorf("%w: existing path is not a bare repository, remove it to clone again path:%s exit-code:%d stderr:%q",
			ErrFilesystem, path, res.ExitCode, res.Stderr)
	}

	log.Log(ctx, -8, "existing mirror directory is valid", "path", path)
	return nil
}

// update refreshes the remote url and fetches the remote. it returns the refs
// which were added, updated or pruned.
func (e *Engine) update(ctx context.Context, log *slog.Logger, repo *Repository, path, remote string) ([]string, error) {
	// token might have changed since the mirror was created, origin must
	// always use the current one
	// git remote set-url origin <remote>
	if _, err := e.git(ctx, repo, "set-url", path, "remote", "set-url", "origin", remote); err != nil {
		return nil, err
	}

	if e.mode == DetectProbe {
		// git fetch --dry-run --porcelain --prune --no-progress origin
		res, err := e.git(ctx, repo, "probe", path, "fetch", "--dry-run", "--porcelain", "--prune", "--no-progress", "origin")
		if err != nil {
			return nil, err
		}
		if len(updatedRefs(res.Stdout)) == 0 {
			log.Debug("probe reported no changes, skipping fetch", "path", path)
			return nil, nil
		}
	}

	// adding --porcelain so output can be parsed for updated refs
	// do not use -v output it will print all refs
	// git fetch origin --prune --no-progress --porcelain
	res, err := e.git(ctx, repo, "fetch", path, "fetch", "origin", "--prune", "--no-progress", "--porcelain")
	if err != nil {
		return nil, err
	}

	refs := updatedRefs(res.Stdout)
	if len(refs) == 0 && e.mode == DetectProbe {
		log.Debug("probe reported changes but fetch updated nothing", "path", path)
	}
	return refs, nil
}

// git runs a git command for the repository, any failure including non-zero
// exit is returned as *TransferError
func (e *Engine) git(ctx context.Context, repo *Repository, op, cwd string, args ...string) (*CommandResult, error) {
	res, err := e.runner.Run(ctx, cwd, args...)
	if err != nil {
		return nil, &TransferError{Repo: repo.FullName(), Op: op, ExitCode: -1, Err: err}
	}
	if res.ExitCode != 0 {
		return res, &TransferError{Repo: repo.FullName(), Op: op, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	return res, nil
}
