package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"

	"github.com/utilitywarehouse/github-backup/internal/utils"
)

// minimum git version, `git fetch --porcelain` was added in 2.41
const (
	minGitMajor = 2
	minGitMinor = 41
)

var (
	gitExecutablePath string

	gitVersionRgx = regexp.MustCompile(`git version (\d+)\.(\d+)`)

	// ErrGitVersion is returned by CheckGitVersion if installed git is too old
	ErrGitVersion = errors.New("unsupported git version")
)

func init() {
	gitExecutablePath = exec.Command("git").String()
}

// CommandResult holds exit status and captured output of a git command
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// CommandRunner runs git commands synchronously.
// A non-zero exit is reported via CommandResult.ExitCode, the returned error
// is only set if the command could not be run at all.
type CommandRunner interface {
	Run(ctx context.Context, cwd string, args ...string) (*CommandResult, error)
}

// GitRunner runs commands with the git executable found in PATH.
type GitRunner struct {
	log  *slog.Logger
	envs []string
}

// NewGitRunner returns a runner which passes only the given envs to git.
func NewGitRunner(log *slog.Logger, envs []string) *GitRunner {
	if log == nil {
		log = slog.Default()
	}
	return &GitRunner{log: log, envs: envs}
}

// Run runs git with given arguments on given CWD
func (g *GitRunner) Run(ctx context.Context, cwd string, args ...string) (*CommandResult, error) {
	res, err := utils.RunCommand(ctx, g.log, g.envs, cwd, gitExecutablePath, args...)
	if err != nil {
		return nil, err
	}
	return &CommandResult{ExitCode: res.ExitCode, Stdout: res.Stdout, Stderr: res.Stderr}, nil
}

// CheckGitVersion runs `git version` and returns the reported version.
// An error wrapping ErrGitVersion is returned if git is older than 2.41.
func CheckGitVersion(ctx context.Context, runner CommandRunner) (string, error) {
	res, err := runner.Run(ctx, "", "version")
	if err != nil {
		return "", fmt.Errorf("unable to run git err:%w", err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git version failed exit-code:%d stderr:%q", res.ExitCode, res.Stderr)
	}

	major, minor, err := parseGitVersion(res.Stdout)
	if err != nil {
		return "", err
	}
	version := fmt.Sprintf("%d.%d", major, minor)
	if major < minGitMajor || (major == minGitMajor && minor < minGitMinor) {
		return version, fmt.Errorf("%w: found %s, at least %d.%d is required", ErrGitVersion, version, minGitMajor, minGitMinor)
	}
	return version, nil
}

func parseGitVersion(output string) (major, minor int, err error) {
	m := gitVersionRgx.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: unable to parse %q", ErrGitVersion, output)
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, nil
}
