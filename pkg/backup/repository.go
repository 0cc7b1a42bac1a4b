package backup

import (
	"context"
	"errors"
)

// ErrIterationDone is returned by RepositoryIterator.Next when there are no
// more repositories.
var ErrIterationDone = errors.New("no more repositories")

// Repository describes a remote repository to be mirrored.
// It is created by the repository source and never modified.
type Repository struct {
	Owner    string // login of the owning account
	Name     string // repository name without .git suffix
	Private  bool
	CloneURL string // https clone url without credentials
}

// FullName returns owner/name
func (r *Repository) FullName() string {
	return r.Owner + "/" + r.Name
}

// Visibility returns "private" or "public"
func (r *Repository) Visibility() string {
	if r.Private {
		return "private"
	}
	return "public"
}

// RepositoryIterator is a lazy, finite, single-pass sequence of repositories.
type RepositoryIterator interface {
	// Next returns the next repository or ErrIterationDone once the
	// sequence is exhausted. Any other error is an enumeration failure.
	Next(ctx context.Context) (*Repository, error)

	// Total returns the expected number of repositories in the sequence
	// as currently known or -1 if unknown. The value may change while
	// iterating and is exact once Next has returned ErrIterationDone.
	Total() int
}
