package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeGo(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRepositoryQueriesAreMarked(t *testing.T) {
	violations, err := lintPaths([]string{filepath.Join("..", "..", "sqlinline")})
	if err != nil {
		t.Fatalf("lintPaths: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s", v)
	}
}

func TestLintReportsProblems(t *testing.T) {
	dir := t.TempDir()
	writeGo(t, dir, "q.go", "package q\n\n"+
		"const QGood = `--sql 11111111-2222-4333-8444-555555555555\nselect 1;`\n\n"+
		"const QMissing = `select id from users;`\n\n"+
		"const QDup = `--sql 11111111-2222-4333-8444-555555555555\ndelete from users;`\n\n"+
		"const Label = \"not sql at all\"\n")
	writeGo(t, dir, "q_test.go", "package q\n\nconst QIgnored = `select 2;`\n")

	violations, err := lintPaths([]string{dir})
	if err != nil {
		t.Fatalf("lintPaths: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("violations = %v, want 2", violations)
	}
	var missing, dup bool
	for _, v := range violations {
		switch {
		case v.name == "QMissing" && strings.Contains(v.message, "missing"):
			missing = true
		case v.name == "QDup" && strings.Contains(v.message, "QGood"):
			dup = true
		}
	}
	if !missing || !dup {
		t.Fatalf("unexpected violations %v", violations)
	}
}
