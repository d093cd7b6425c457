package dip

import (
	"testing"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  *Path
	}{
		{
			name:  "nested directory",
			input: "alice/story/chapters/ch1.md",
			want:  &Path{Owner: "alice", Repo: "story", DirPath: "chapters", Filename: "ch1", Extension: "md", FullFilename: "ch1.md"},
		},
		{
			name:  "repository root",
			input: "alice/story/index.md",
			want:  &Path{Owner: "alice", Repo: "story", Filename: "index", Extension: "md", FullFilename: "index.md"},
		},
		{
			name:  "deep directory",
			input: "bob/novel/story/part1/scene2/draft.v2.md",
			want:  &Path{Owner: "bob", Repo: "novel", DirPath: "story/part1/scene2", Filename: "draft.v2", Extension: "md", FullFilename: "draft.v2.md"},
		},
		{
			name:  "leading slash is ignored",
			input: "/alice/story/ch1.md",
			want:  &Path{Owner: "alice", Repo: "story", Filename: "ch1", Extension: "md", FullFilename: "ch1.md"},
		},
		{name: "two segments", input: "alice/ch1.md"},
		{name: "empty", input: ""},
		{name: "no extension", input: "alice/story/README"},
		{name: "leading dot only", input: "alice/story/.hidden"},
		{name: "trailing dot", input: "alice/story/ch1."},
		{name: "empty segment", input: "alice//story/ch1.md"},
		{name: "trailing slash", input: "alice/story/ch1.md/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParsePath(tt.input)
			if tt.want == nil {
				if got != nil {
					t.Errorf("ParsePath(%q) = %+v, want nil", tt.input, got)
				}
				return
			}
			if got == nil {
				t.Fatalf("ParsePath(%q) = nil", tt.input)
			}
			if *got != *tt.want {
				t.Errorf("ParsePath(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestPath_RoundTrip(t *testing.T) {
	inputs := []string{
		"alice/story/ch1.md",
		"alice/story/chapters/ch1.md",
		"bob/novel/story/a/b/c/img.png",
		"carol/poems/story/über.md",
	}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			p := ParsePath(in)
			if p == nil {
				t.Fatalf("ParsePath(%q) = nil", in)
			}
			if got := p.String(); got != in {
				t.Errorf("String() = %q, want %q", got, in)
			}
			again := ParsePath(p.String())
			if *again != *p {
				t.Errorf("ParsePath(String()) = %+v, want %+v", again, p)
			}
		})
	}
}

func TestPath_Accessors(t *testing.T) {
	p := ParsePath("alice/story/chapters/ch1.md")

	if got := p.Repository(); got != "alice/story" {
		t.Errorf("Repository() = %q", got)
	}
	if got := p.Dir(); got != "alice/story/chapters" {
		t.Errorf("Dir() = %q", got)
	}
	if got := p.RepoPath(); got != "chapters/ch1.md" {
		t.Errorf("RepoPath() = %q", got)
	}

	moved := p.InRepository("bob", "story")
	if got := moved.String(); got != "bob/story/chapters/ch1.md" {
		t.Errorf("InRepository() = %q", got)
	}
	if p.Owner != "alice" {
		t.Error("InRepository() modified the receiver")
	}

	root := ParsePath("alice/story/index.md")
	if got := root.Dir(); got != "alice/story" {
		t.Errorf("Dir() at root = %q", got)
	}
	if got := root.RepoPath(); got != "index.md" {
		t.Errorf("RepoPath() at root = %q", got)
	}
}

func TestSplitRepository(t *testing.T) {
	tests := []struct {
		input     string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{input: "alice/story", wantOwner: "alice", wantRepo: "story", wantOK: true},
		{input: "alice", wantOK: false},
		{input: "alice/", wantOK: false},
		{input: "/story", wantOK: false},
		{input: "alice/story/extra", wantOK: false},
		{input: "", wantOK: false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			owner, repo, ok := SplitRepository(tt.input)
			if owner != tt.wantOwner || repo != tt.wantRepo || ok != tt.wantOK {
				t.Errorf("SplitRepository(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.input, owner, repo, ok, tt.wantOwner, tt.wantRepo, tt.wantOK)
			}
		})
	}
}

func TestIsHidden(t *testing.T) {
	tests := map[string]bool{
		"story/ch1.md":         false,
		".github/workflow.yml": true,
		"story/.draft.md":      true,
		"story/a.b/c.md":       false,
	}
	for in, want := range tests {
		if got := IsHidden(in); got != want {
			t.Errorf("IsHidden(%q) = %v, want %v", in, got, want)
		}
	}
}
