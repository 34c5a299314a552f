package gitinfo

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortSHAEnvOverride(t *testing.T) {
	t.Setenv("SHORT_SHA", "deadbeef")
	sha, err := ShortSHA(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
}

func TestShortSHAFromRepo(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hi"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("f.txt")
	require.NoError(t, err)
	commitHash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)

	sha, err := ShortSHA(dir)
	require.NoError(t, err)
	assert.Equal(t, commitHash.String()[:8], sha)
}

func TestShortSHADirtySuffix(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("hi"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("f.txt")
	require.NoError(t, err)
	_, err = wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Unix(0, 0)},
	})
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("changed"), 0o644))

	sha, err := ShortSHA(dir)
	require.NoError(t, err)
	assert.Contains(t, sha, "-dirty")
}

func TestShortSHANoRepo(t *testing.T) {
	_, err := ShortSHA(t.TempDir())
	assert.Error(t, err)
}

func TestFuncFallsBackToEmpty(t *testing.T) {
	fn := Func(t.TempDir())
	assert.Equal(t, "", fn())
}
