package git

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoGitClonePinsCommit(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "entry")

	err := NewGoGitCloner(src.dir).Clone(t.Context(), dest, src.first, []string{"/"}, false)
	require.NoError(t, err)
	assertExists(t, dest, "README.md", "docs/index.md")
	assertMissing(t, dest, "lib/a.go")
}

func TestGoGitCloneSparseMask(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	src := newSourceRepo(t)
	dest := filepath.Join(t.TempDir(), "entry")

	err := NewGoGitCloner(src.dir).Clone(t.Context(), dest, src.second, []string{"/lib", "docs"}, false)
	require.NoError(t, err)
	assertExists(t, dest, "lib/a.go", "docs/index.md")
	assertMissing(t, dest, "README.md", "library/b.go")
}

func TestGoGitCloneClassifiedFailures(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	src := newSourceRepo(t)

	cases := []struct {
		name   string
		repo   string
		commit string
		mask   []string
	}{
		{name: "unknown commit", repo: src.dir, commit: src.unknown, mask: nil},
		{name: "path missing at commit", repo: src.dir, commit: src.first, mask: []string{"/lib"}},
		{name: "repository missing", repo: filepath.Join(t.TempDir(), "nope"), commit: src.first},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dest := filepath.Join(t.TempDir(), "entry")
			err := NewGoGitCloner(tc.repo).Clone(t.Context(), dest, tc.commit, tc.mask, false)
			var cf *CloneFailedError
			require.True(t, errors.As(err, &cf), "expected CloneFailedError, got %T: %v", err, err)
			assert.Equal(t, ExitStatusNotFound, cf.ExitStatus)
			assert.True(t, IsClassified(err))
		})
	}
}

func TestGoGitCloneCancelledIsUnclassified(t *testing.T) {
	src := newSourceRepo(t)
	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	err := NewGoGitCloner(src.dir).Clone(ctx, filepath.Join(t.TempDir(), "entry"), src.first, nil, false)
	require.Error(t, err)
	assert.False(t, IsClassified(err))
}

func TestMaskRoots(t *testing.T) {
	assert.Nil(t, maskRoots(nil))
	assert.Nil(t, maskRoots([]string{"/docs", "/"}))
	assert.Equal(t, []string{"docs", "lib/x"}, maskRoots([]string{"/docs/", "lib//x"}))
}

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "clone failed (exit status 128): boom", (&CloneFailedError{ExitStatus: 128, Message: "boom"}).Error())
	assert.Equal(t, "fetch failed: net", (&FetchFailedError{Message: "net"}).Error())
	assert.False(t, IsClassified(errors.New("other")))
}
