package match

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNew(t *testing.T) {
	t.Run("skips blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := New([]string{"", "  ", "# comment", "*.log", "/"})
		if m.Len() != 1 {
			t.Fatalf("expected 1 rule, got %d", m.Len())
		}
		if m.rules[0].pattern != "*.log" {
			t.Errorf("expected *.log, got %s", m.rules[0].pattern)
		}
	})

	t.Run("classifies rules", func(t *testing.T) {
		t.Parallel()
		m := New([]string{"drafts/", "/story/old", "!keep.md"})
		want := []rule{
			{pattern: "drafts"},
			{pattern: "story/old", matchPath: true},
			{pattern: "keep.md", negate: true},
		}
		if len(m.rules) != len(want) {
			t.Fatalf("got %d rules, want %d", len(m.rules), len(want))
		}
		for i := range want {
			if m.rules[i] != want[i] {
				t.Errorf("rule %d = %+v, want %+v", i, m.rules[i], want[i])
			}
		}
	})
}

func TestMatcher_Match(t *testing.T) {
	tests := []struct {
		name         string
		patterns     []string
		relativePath string
		want         bool
	}{
		{
			name:         "segment glob matches file in root",
			patterns:     []string{"*.txt"},
			relativePath: "notes.txt",
			want:         true,
		},
		{
			name:         "segment glob matches file in subdirectory",
			patterns:     []string{"*.txt"},
			relativePath: "story/notes.txt",
			want:         true,
		},
		{
			name:         "segment glob does not match different extension",
			patterns:     []string{"*.txt"},
			relativePath: "story/ch1.md",
			want:         false,
		},
		{
			name:         "directory rule matches the listed directory",
			patterns:     []string{"drafts/"},
			relativePath: "story/drafts",
			want:         true,
		},
		{
			name:         "directory rule matches files below it",
			patterns:     []string{"drafts/"},
			relativePath: "story/drafts/wip.md",
			want:         true,
		},
		{
			name:         "path rule matches exact path",
			patterns:     []string{"story/old"},
			relativePath: "story/old",
			want:         true,
		},
		{
			name:         "path rule matches descendants",
			patterns:     []string{"story/old"},
			relativePath: "story/old/ch1.md",
			want:         true,
		},
		{
			name:         "path rule does not match elsewhere",
			patterns:     []string{"story/old"},
			relativePath: "archive/story/old",
			want:         false,
		},
		{
			name:         "path glob",
			patterns:     []string{"story/*.bak"},
			relativePath: "story/ch1.bak",
			want:         true,
		},
		{
			name:         "negation re-includes",
			patterns:     []string{"*.md", "!index.md"},
			relativePath: "story/index.md",
			want:         false,
		},
		{
			name:         "last rule wins",
			patterns:     []string{"!index.md", "*.md"},
			relativePath: "story/index.md",
			want:         true,
		},
		{
			name:         "bad pattern is skipped",
			patterns:     []string{"[", "*.tmp"},
			relativePath: "a.tmp",
			want:         true,
		},
		{
			name:         "no rules",
			patterns:     nil,
			relativePath: "story/ch1.md",
			want:         false,
		},
		{
			name:         "empty path",
			patterns:     []string{"*"},
			relativePath: "",
			want:         false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(tt.patterns)
			if got := m.Match(tt.relativePath); got != tt.want {
				t.Errorf("Match(%q) = %v, want %v", tt.relativePath, got, tt.want)
			}
		})
	}
}

func TestReadFile(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		got, err := ReadFile(filepath.Join(t.TempDir(), IgnoreFileName))
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if got != nil {
			t.Errorf("ReadFile() = %v, want nil", got)
		}
	})

	t.Run("reads lines", func(t *testing.T) {
		name := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(name, []byte("# local\ndrafts/\n*.bak\n"), 0644); err != nil {
			t.Fatal(err)
		}
		got, err := ReadFile(name)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if len(got) != 3 || got[1] != "drafts/" || got[2] != "*.bak" {
			t.Errorf("ReadFile() = %v", got)
		}
		if New(got).Len() != 2 {
			t.Errorf("Len() = %d, want 2", New(got).Len())
		}
	})
}
