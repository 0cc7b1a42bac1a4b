package identity

import (
	"context"
	"fmt"

	"github.com/google/go-github/v66/github"
	"github.com/utilitywarehouse/github-backup/pkg/backup"
)

const reposPerPage = 100

// RepositoryIterator pages through the repositories owned by the
// authenticated account. It implements backup.RepositoryIterator.
type RepositoryIterator struct {
	client  *Client
	buf     []*github.Repository
	page    int // next page to request, 0 is the first page
	done    bool
	yielded int
}

// OwnedRepositories returns an iterator over the repositories owned by the
// authenticated account sorted by full name. Pages are requested lazily.
func (c *Client) OwnedRepositories() *RepositoryIterator {
	return &RepositoryIterator{client: c}
}

// Next returns the next repository or backup.ErrIterationDone at the end.
// A failed page request is returned wrapped in ErrEnumeration, calling Next
// again retries the same page.
func (it *RepositoryIterator) Next(ctx context.Context) (*backup.Repository, error) {
	for {
		for len(it.buf) > 0 {
			r := it.buf[0]
			it.buf = it.buf[1:]
			if r == nil || r.GetName() == "" {
				continue
			}
			it.yielded++
			return toRepository(r), nil
		}
		if it.done {
			return nil, backup.ErrIterationDone
		}
		if err := it.fetch(ctx); err != nil {
			return nil, err
		}
	}
}

// Total returns the owned repository count reported at authentication until
// the last page is read, after that the number of yielded repositories.
func (it *RepositoryIterator) Total() int {
	if it.done && len(it.buf) == 0 {
		return it.yielded
	}
	if it.client.ownedRepos <= 0 {
		return -1
	}
	return it.client.ownedRepos
}

func (it *RepositoryIterator) fetch(ctx context.Context) error {
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner",
		Sort:        "full_name",
		Direction:   "asc",
		ListOptions: github.ListOptions{Page: it.page, PerPage: reposPerPage},
	}

	repos, resp, err := it.client.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
	if err != nil {
		return fmt.Errorf("%w: page:%d err:%w", ErrEnumeration, it.page, err)
	}

	it.client.log.Debug("fetched repository page", "page", it.page, "count", len(repos), "next-page", resp.NextPage)

	it.buf = repos
	if resp.NextPage == 0 {
		it.done = true
	} else {
		it.page = resp.NextPage
	}
	return nil
}

func toRepository(r *github.Repository) *backup.Repository {
	return &backup.Repository{
		Owner:    r.GetOwner().GetLogin(),
		Name:     r.GetName(),
		Private:  r.GetPrivate(),
		CloneURL: r.GetCloneURL(),
	}
}
