package backup

import (
	"errors"
	"fmt"

	"github.com/utilitywarehouse/github-backup/pkg/giturl"
)

var (
	// ErrEnumeration is returned by Coordinator.Run when listing repositories failed.
	ErrEnumeration = errors.New("repository enumeration failed")
	// ErrFilesystem wraps failures to resolve or create mirror directories.
	ErrFilesystem = errors.New("filesystem error")
	// ErrTransfer is matched by every *TransferError.
	ErrTransfer = errors.New("transfer failed")
)

// TransferError is returned when a git clone or update of a repository failed.
type TransferError struct {
	Repo     string // owner/name
	Op       string // clone, set-url, probe or fetch
	ExitCode int    // -1 if the command did not exit
	Stderr   string
	Err      error // set if the command could not be run
}

func (e *TransferError) Error() string {
	if e.Err != nil {
		return giturl.Redact(fmt.Sprintf("git %s failed repo:%s err:%v", e.Op, e.Repo, e.Err))
	}
	return giturl.Redact(fmt.Sprintf("git %s failed repo:%s exit-code:%d stderr:%q", e.Op, e.Repo, e.ExitCode, e.Stderr))
}

func (e *TransferError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrTransfer, e.Err}
	}
	return []error{ErrTransfer}
}
