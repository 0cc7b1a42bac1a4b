package backup

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

const defaultDirMode fs.FileMode = os.FileMode(0755) // 'rwxr-xr-x'

// Store maps repositories to mirror directories under the root.
type Store struct {
	fs   afero.Fs
	root string
}

// NewStore returns a Store rooted at the given directory of the filesystem.
func NewStore(fs afero.Fs, root string) *Store {
	return &Store{fs: fs, root: filepath.Clean(root)}
}

// Root returns the directory all mirrors are stored under
func (s *Store) Root() string {
	return s.root
}

// Path returns the mirror directory of the repository: <root>/<owner>/<name>.git
// The path only depends on owner and name so the same repository always
// resolves to the same directory.
func (s *Store) Path(repo *Repository) (string, error) {
	if err := validPathElement(repo.Owner); err != nil {
		return "", fmt.Errorf("%w: invalid owner %q err:%w", ErrFilesystem, repo.Owner, err)
	}

	// we create bare repo, add .git suffix to indicate that
	name := repo.Name
	if !strings.HasSuffix(name, ".git") {
		name += ".git"
	}
	if err := validPathElement(strings.TrimSuffix(name, ".git")); err != nil {
		return "", fmt.Errorf("%w: invalid repository name %q err:%w", ErrFilesystem, repo.Name, err)
	}

	return filepath.Join(s.root, repo.Owner, name), nil
}

// Exists reports whether the given path exists
func (s *Store) Exists(path string) (bool, error) {
	ok, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("%w: unable to verify path:%s err:%w", ErrFilesystem, path, err)
	}
	return ok, nil
}

// IsEmpty reports whether the directory at path has no entries
func (s *Store) IsEmpty(path string) (bool, error) {
	empty, err := afero.IsEmpty(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("%w: unable to list dir:%s err:%w", ErrFilesystem, path, err)
	}
	return empty, nil
}

// EnsureDirectory creates the directory and any missing parents.
// An existing directory is not an error.
func (s *Store) EnsureDirectory(path string) error {
	if err := s.fs.MkdirAll(path, defaultDirMode); err != nil {
		return fmt.Errorf("%w: unable to create dir:%s err:%w", ErrFilesystem, path, err)
	}
	return nil
}

// validPathElement makes sure owner and name are used as a single directory
// level so that different repositories can never share a path.
func validPathElement(elem string) error {
	switch {
	case elem == "":
		return fmt.Errorf("cannot be empty")
	case elem == "." || elem == "..":
		return fmt.Errorf("reserved path element")
	case strings.ContainsAny(elem, `/\`) || strings.ContainsRune(elem, os.PathSeparator):
		return fmt.Errorf("cannot contain path separator")
	}
	return nil
}
