// Package gitinfo resolves the commit hash attached to every
// RegisterTask call, grounded on the original's
// stardag.build.registry.get_git_commit_hash: prefer an env var set by
// CI, else read HEAD of the repository containing the working
// directory.
package gitinfo

import (
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
)

// envVars are checked in order before falling back to reading the
// repository directly, matching the original's supported_env_vars.
var envVars = []string{"SHORT_SHA", "COMMIT_HASH"}

// ShortSHA returns a short commit hash for dir's repository, appending
// "-dirty" if the worktree has uncommitted changes. If neither env var
// is set and dir is not inside a git repository, it returns an empty
// string and a descriptive error - callers (e.g. internal/registry)
// should tolerate this by recording an empty commit hash rather than
// failing registration outright.
func ShortSHA(dir string) (string, error) {
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v, nil
		}
	}

	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", fmt.Errorf("stardag/gitinfo: opening repository at %s: %w", dir, err)
	}

	head, err := repo.Head()
	if err != nil {
		return "", fmt.Errorf("stardag/gitinfo: reading HEAD: %w", err)
	}
	hash := head.Hash().String()
	if len(hash) > 8 {
		hash = hash[:8]
	}

	dirty, err := isDirty(repo)
	if err != nil {
		return hash, nil // best-effort: a failed dirty check shouldn't block registration
	}
	if dirty {
		hash += "-dirty"
	}
	return hash, nil
}

func isDirty(repo *git.Repository) (bool, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return false, err
	}
	status, err := wt.Status()
	if err != nil {
		return false, err
	}
	return !status.IsClean(), nil
}

// Func returns a closure suitable for
// registry.WithCommitHashFunc, resolving dir lazily on every call and
// falling back to "" on error so a missing repository never blocks
// task registration.
func Func(dir string) func() string {
	return func() string {
		sha, err := ShortSHA(dir)
		if err != nil {
			return ""
		}
		return sha
	}
}
