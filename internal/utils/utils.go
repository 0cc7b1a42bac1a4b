package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/utilitywarehouse/github-backup/pkg/giturl"
)

// Result is the outcome of a command which was started successfully.
// stdout and stderr are trimmed and have credentials redacted.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// RunCommand runs given command with given arguments on given CWD.
// A command which exits with non-zero status is not an error, callers must
// check Result.ExitCode. An error is only returned if the command could not be
// started or was interrupted by the context.
func RunCommand(ctx context.Context, log *slog.Logger, envs []string, cwd string, command string, args ...string) (*Result, error) {

	cmdStr := giturl.Redact(command + " " + strings.Join(args, " "))
	log.Log(ctx, -8, "running command", "cwd", cwd, "cmd", cmdStr)

	cmd := exec.CommandContext(ctx, command, args...)
	// force kill git & child process 5 seconds after sending it sigterm (when ctx is cancelled/timed out)
	cmd.WaitDelay = 5 * time.Second
	if cwd != "" {
		cmd.Dir = cwd
	}
	outbuf := bytes.NewBuffer(nil)
	errbuf := bytes.NewBuffer(nil)
	cmd.Stdout = outbuf
	cmd.Stderr = errbuf

	// If Env is nil, the new process uses the current process's environment.
	cmd.Env = []string{}

	if len(envs) > 0 {
		cmd.Env = append(cmd.Env, envs...)
	}

	start := time.Now()
	err := cmd.Run()

	res := &Result{
		ExitCode: -1,
		Stdout:   giturl.Redact(strings.TrimSpace(outbuf.String())),
		Stderr:   giturl.Redact(strings.TrimSpace(errbuf.String())),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctx.Err() != nil {
		return res, fmt.Errorf("Run(%s): err:%w { stdout: %q, stderr: %q }", cmdStr, ctx.Err(), res.Stdout, res.Stderr)
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return res, fmt.Errorf("Run(%s): err:%w { stdout: %q, stderr: %q }", cmdStr, err, res.Stdout, res.Stderr)
	}

	log.Log(ctx, -8, "command result", "exit-code", res.ExitCode, "stdout", res.Stdout, "stderr", res.Stderr, "time", res.Duration)

	return res, nil
}
