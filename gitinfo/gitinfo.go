// Package gitinfo is the injected Git metadata resolver collaborator: it
// answers "is this working directory a Git repository, and if so what
// branch/remote is it on", without the terminal registry knowing or
// caring how that's determined.
package gitinfo

import (
	"github.com/go-git/go-git/v5"
)

// Info is the metadata surfaced for a terminal's working directory.
type Info struct {
	IsRepo    bool
	Branch    string
	RemoteURL string
}

// Resolver answers Git metadata queries for a working directory. Out of
// scope per the core spec; the default implementation below is a real
// collaborator, not a stub.
type Resolver interface {
	Resolve(workingDir string) *Info
}

// GoGitResolver resolves Git metadata via go-git, reading the repository
// on disk without shelling out to a git binary.
type GoGitResolver struct{}

// NewGoGitResolver returns the default Resolver.
func NewGoGitResolver() *GoGitResolver {
	return &GoGitResolver{}
}

// Resolve returns nil if workingDir is not inside a Git repository.
func (GoGitResolver) Resolve(workingDir string) *Info {
	repo, err := git.PlainOpenWithOptions(workingDir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil
	}

	info := &Info{IsRepo: true}

	if head, err := repo.Head(); err == nil {
		info.Branch = head.Name().Short()
	}

	if remote, err := repo.Remote("origin"); err == nil {
		if cfg := remote.Config(); cfg != nil && len(cfg.URLs) > 0 {
			info.RemoteURL = cfg.URLs[0]
		}
	}

	return info
}

// NoopResolver always reports "not a repository"; useful for tests or
// deployments that don't want Git metadata at all.
type NoopResolver struct{}

func (NoopResolver) Resolve(string) *Info { return nil }
