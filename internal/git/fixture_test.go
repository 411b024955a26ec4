package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// sourceRepo is a local repository used as clone origin.
type sourceRepo struct {
	dir     string
	first   string // README.md, docs/index.md
	second  string // adds lib/a.go and library/b.go
	unknown string
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		t.Fatalf("mkdir %s: %v", rel, err)
	}
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", rel, err)
	}
}

func newSourceRepo(t *testing.T) sourceRepo {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "origin")
	r, err := gogit.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("init repo: %v", err)
	}
	cfg, err := r.Config()
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Raw.Section("uploadpack").SetOption("allowAnySHA1InWant", "true")
	if err := r.SetConfig(cfg); err != nil {
		t.Fatalf("set config: %v", err)
	}
	wt, err := r.Worktree()
	if err != nil {
		t.Fatalf("worktree: %v", err)
	}
	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Unix(1700000000, 0)}

	commit := func(msg string, files map[string]string) string {
		for rel, content := range files {
			writeFile(t, dir, rel, content)
			if _, err := wt.Add(rel); err != nil {
				t.Fatalf("add %s: %v", rel, err)
			}
		}
		h, err := wt.Commit(msg, &gogit.CommitOptions{Author: sig})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		return h.String()
	}

	first := commit("initial", map[string]string{"README.md": "# repo\n", "docs/index.md": "# docs\n"})
	second := commit("add libs", map[string]string{"lib/a.go": "package lib\n", "library/b.go": "package library\n"})
	return sourceRepo{dir: dir, first: first, second: second, unknown: "0123456789abcdef0123456789abcdef01234567"}
}

func assertExists(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			t.Errorf("expected %s to exist: %v", rel, err)
		}
	}
}

func assertMissing(t *testing.T, root string, rels ...string) {
	t.Helper()
	for _, rel := range rels {
		if _, err := os.Stat(filepath.Join(root, filepath.FromSlash(rel))); !os.IsNotExist(err) {
			t.Errorf("expected %s to be absent, stat err=%v", rel, err)
		}
	}
}
