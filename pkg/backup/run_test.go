package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/spf13/afero"
)

// sliceIterator yields repos and then err or ErrIterationDone
type sliceIterator struct {
	repos []*Repository
	total int
	err   error
	next  int
}

func (s *sliceIterator) Next(ctx context.Context) (*Repository, error) {
	if s.next < len(s.repos) {
		s.next++
		return s.repos[s.next-1], nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, ErrIterationDone
}

func (s *sliceIterator) Total() int {
	return s.total
}

// fakeSyncer returns configured results per repository full name
type fakeSyncer struct {
	updated map[string]bool
	errs    map[string]error
	synced  []string
	onSync  func()
}

func (f *fakeSyncer) Sync(ctx context.Context, repo *Repository) (bool, error) {
	f.synced = append(f.synced, repo.FullName())
	if f.onSync != nil {
		f.onSync()
	}
	if err := f.errs[repo.FullName()]; err != nil {
		return false, err
	}
	return f.updated[repo.FullName()], nil
}

func testRepos(n int) []*Repository {
	var repos []*Repository
	for i := range n {
		name := fmt.Sprintf("repo%d", i)
		repos = append(repos, &Repository{Owner: "alice", Name: name, CloneURL: "https://github.com/alice/" + name + ".git"})
	}
	return repos
}

var ignoreTimes = cmpopts.IgnoreFields(Summary{}, "Started", "Elapsed")

func TestCoordinator_Run(t *testing.T) {
	tests := []struct {
		name    string
		repos   *sliceIterator
		syncer  *fakeSyncer
		want    *Summary
		wantErr error
	}{
		{
			"single_new_repo",
			&sliceIterator{repos: []*Repository{testRepo}, total: 1},
			&fakeSyncer{updated: map[string]bool{"alice/proj": true}},
			&Summary{Discovered: 1, Processed: 1, Updated: 1},
			nil,
		},
		{
			"no_repos",
			&sliceIterator{total: 0},
			&fakeSyncer{},
			&Summary{},
			nil,
		},
		{
			"mixed_updates",
			&sliceIterator{repos: testRepos(3), total: 3},
			&fakeSyncer{updated: map[string]bool{"alice/repo0": true, "alice/repo2": true}},
			&Summary{Discovered: 3, Processed: 3, Updated: 2},
			nil,
		},
		{
			"partial_failure",
			&sliceIterator{repos: testRepos(4), total: 4},
			&fakeSyncer{
				updated: map[string]bool{"alice/repo0": true},
				errs: map[string]error{
					"alice/repo1": &TransferError{Repo: "alice/repo1", Op: "clone", ExitCode: 128},
					"alice/repo3": &TransferError{Repo: "alice/repo3", Op: "fetch", ExitCode: 1},
				},
			},
			&Summary{Discovered: 4, Processed: 4, Updated: 1, Failed: 2},
			nil,
		},
		{
			"unknown_total",
			&sliceIterator{repos: testRepos(2), total: -1},
			&fakeSyncer{},
			&Summary{Discovered: 2, Processed: 2},
			nil,
		},
		{
			"total_lower_than_yielded",
			&sliceIterator{repos: testRepos(3), total: 1},
			&fakeSyncer{},
			&Summary{Discovered: 3, Processed: 3},
			nil,
		},
		{
			"enumeration_fault_at_start",
			&sliceIterator{total: 5, err: errors.New("502 bad gateway")},
			&fakeSyncer{},
			&Summary{Discovered: 5, Aborted: true},
			ErrEnumeration,
		},
		{
			"enumeration_fault_no_total",
			&sliceIterator{total: -1, err: errors.New("502 bad gateway")},
			&fakeSyncer{},
			&Summary{Discovered: 0, Aborted: true},
			ErrEnumeration,
		},
		{
			"enumeration_fault_mid_run",
			&sliceIterator{repos: testRepos(2), total: 10, err: errors.New("rate limited")},
			&fakeSyncer{updated: map[string]bool{"alice/repo1": true}},
			&Summary{Discovered: 10, Processed: 2, Updated: 1, Aborted: true},
			ErrEnumeration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCoordinator(tt.syncer, nil)

			got, err := c.Run(t.Context(), tt.repos)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Run() error = %v, want %v", err, tt.wantErr)
			}

			if diff := cmp.Diff(tt.want, got, ignoreTimes); diff != "" {
				t.Errorf("Run() summary mismatch (-want +got):\n%s", diff)
			}
			if got.Processed != len(tt.syncer.synced) {
				t.Errorf("processed:%d but synced:%d", got.Processed, len(tt.syncer.synced))
			}
			if got.Processed > got.Discovered {
				t.Errorf("processed:%d > discovered:%d", got.Processed, got.Discovered)
			}
		})
	}
}

func TestCoordinator_Run_partialFailureIsComplete(t *testing.T) {
	syncer := &fakeSyncer{errs: map[string]error{"alice/repo1": errors.New("boom")}}
	c := NewCoordinator(syncer, nil)

	got, err := c.Run(t.Context(), &sliceIterator{repos: testRepos(3), total: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// repositories after the failed one are still attempted in order
	if diff := cmp.Diff([]string{"alice/repo0", "alice/repo1", "alice/repo2"}, syncer.synced); diff != "" {
		t.Errorf("synced mismatch (-want +got):\n%s", diff)
	}
	if !got.Complete() || got.Status() != "complete" || got.Failed != 1 {
		t.Errorf("unexpected summary %+v status:%s", got, got.Status())
	}
}

func TestCoordinator_Run_enumerationFaultIsIncomplete(t *testing.T) {
	c := NewCoordinator(&fakeSyncer{}, nil)

	got, err := c.Run(t.Context(), &sliceIterator{total: -1, err: errors.New("connection reset")})
	if !errors.Is(err, ErrEnumeration) {
		t.Fatalf("Run() error = %v, want %v", err, ErrEnumeration)
	}
	if got.Discovered != 0 || got.Processed != 0 {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.Complete() || got.Status() != "incomplete" {
		t.Errorf("run should be incomplete, status:%s", got.Status())
	}
}

func TestCoordinator_Run_cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	syncer := &fakeSyncer{}
	// cancel the run while the 2nd repository is synced
	syncer.onSync = func() {
		if len(syncer.synced) == 2 {
			cancel()
		}
	}
	c := NewCoordinator(syncer, nil)

	got, err := c.Run(ctx, &sliceIterator{repos: testRepos(5), total: 5})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want %v", err, context.Canceled)
	}
	if errors.Is(err, ErrEnumeration) {
		t.Errorf("cancellation is not an enumeration error: %v", err)
	}

	if diff := cmp.Diff(&Summary{Discovered: 5, Processed: 2, Aborted: true}, got, ignoreTimes); diff != "" {
		t.Errorf("Run() summary mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_Run_elapsed(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	calls := 0
	c := NewCoordinator(&fakeSyncer{}, nil)
	c.now = func() time.Time {
		calls++
		return start.Add(time.Duration(calls-1) * 90 * time.Second)
	}

	got, err := c.Run(t.Context(), &sliceIterator{repos: testRepos(1), total: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.Started.Equal(start) || got.Elapsed != 90*time.Second {
		t.Errorf("unexpected times started:%s elapsed:%s", got.Started, got.Elapsed)
	}
}

func TestCoordinator_Run_logs(t *testing.T) {
	fs := afero.NewMemMapFs()
	git := newFakeGit(fs)
	// clone of the 2nd repository fails
	runner := runnerFunc(func(ctx context.Context, cwd string, args ...string) (*CommandResult, error) {
		if args[0] == "clone" && args[len(args)-1] == "/backup/alice/repo1.git" {
			return &CommandResult{ExitCode: 128, Stderr: "fatal: repository not found"}, nil
		}
		return git.Run(ctx, cwd, args...)
	})

	log, records := newRecordLogger()
	e, err := NewEngine(NewStore(fs, "/backup"), runner, testToken, log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	c := NewCoordinator(e, log)
	c.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	summary, err := c.Run(t.Context(), &sliceIterator{repos: testRepos(3), total: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !summary.Complete() {
		t.Fatalf("run should be complete %+v", summary)
	}

	var backedUp []map[string]string
	for _, r := range recordsAt(*records, slog.LevelInfo) {
		if r.Msg == "repository backed up" {
			backedUp = append(backedUp, r.pick("repo", "visibility", "action"))
		}
	}
	wantBackedUp := []map[string]string{
		{"repo": "alice/repo0", "visibility": "public", "action": "cloned"},
		{"repo": "alice/repo2", "visibility": "public", "action": "cloned"},
	}
	if diff := cmp.Diff(wantBackedUp, backedUp); diff != "" {
		t.Errorf("backed up records mismatch (-want +got):\n%s", diff)
	}

	errs := recordsAt(*records, slog.LevelError)
	if len(errs) != 1 {
		t.Fatalf("expected exactly 1 error record got:%v", errs)
	}
	if errs[0].Msg != "repository backup failed" {
		t.Errorf("unexpected error message %q", errs[0].Msg)
	}
	wantFailed := map[string]string{"repo": "alice/repo1", "visibility": "public", "action": "failed"}
	if diff := cmp.Diff(wantFailed, errs[0].pick("repo", "visibility", "action")); diff != "" {
		t.Errorf("failed record mismatch (-want +got):\n%s", diff)
	}
	if _, ok := errs[0].Attrs["err"]; !ok {
		t.Error("failed record should contain err")
	}

	last := (*records)[len(*records)-1]
	if last.Level != slog.LevelInfo || last.Msg != "backup complete" {
		t.Errorf("unexpected summary record level:%s msg:%q", last.Level, last.Msg)
	}
	wantSummary := map[string]string{
		"status": "complete", "discovered": "3", "processed": "3",
		"updated": "2", "failed": "1", "elapsed-seconds": "0.00",
	}
	if diff := cmp.Diff(wantSummary, last.pick("status", "discovered", "processed", "updated", "failed", "elapsed-seconds")); diff != "" {
		t.Errorf("summary record mismatch (-want +got):\n%s", diff)
	}
}

func TestCoordinator_Run_logsIncomplete(t *testing.T) {
	log, records := newRecordLogger()
	c := NewCoordinator(&fakeSyncer{updated: map[string]bool{"alice/repo0": true}}, log)

	_, err := c.Run(t.Context(), &sliceIterator{repos: testRepos(1), total: 4, err: errors.New("rate limited")})
	if !errors.Is(err, ErrEnumeration) {
		t.Fatalf("Run() error = %v, want %v", err, ErrEnumeration)
	}

	for _, r := range *records {
		if r.Msg == "backup complete" {
			t.Errorf("incomplete run must not log %q", r.Msg)
		}
	}
	warns := recordsAt(*records, slog.LevelWarn)
	if len(warns) != 1 || warns[0].Msg != "backup incomplete" {
		t.Fatalf("expected exactly 1 'backup incomplete' warn record got:%v", warns)
	}
	want := map[string]string{
		"status": "incomplete", "discovered": "4", "processed": "1", "updated": "1", "failed": "0",
	}
	if diff := cmp.Diff(want, warns[0].pick("status", "discovered", "processed", "updated", "failed")); diff != "" {
		t.Errorf("summary record mismatch (-want +got):\n%s", diff)
	}
	for _, k := range []string{"elapsed-seconds", "err"} {
		if _, ok := warns[0].Attrs[k]; !ok {
			t.Errorf("summary record should contain %s", k)
		}
	}
}

func TestSummary_Complete(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    bool
	}{
		{"empty", Summary{}, true},
		{"all_processed", Summary{Discovered: 2, Processed: 2}, true},
		{"all_processed_with_failures", Summary{Discovered: 2, Processed: 2, Failed: 2}, true},
		{"missing", Summary{Discovered: 3, Processed: 2}, false},
		{"aborted", Summary{Aborted: true}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Complete(); got != tt.want {
				t.Errorf("Complete() = %t, want %t", got, tt.want)
			}
		})
	}
}
