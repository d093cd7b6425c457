package dip

import "strings"

// Path is a parsed article address of the form owner/repo[/dir...]/file.ext.
// Only the string form is ever persisted; Path is recomputed on demand.
type Path struct {
	Owner        string
	Repo         string
	DirPath      string // "" when the file sits at the repository root
	Filename     string // without extension
	Extension    string
	FullFilename string
}

// ParsePath parses an article address. It returns nil when there are fewer
// than three non-empty segments or the last segment has no interior dot.
func ParsePath(s string) *Path {
	s = strings.TrimLeft(s, "/")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return nil
	}
	for _, p := range parts {
		if p == "" {
			return nil
		}
	}

	full := parts[len(parts)-1]
	dot := strings.LastIndex(full, ".")
	if dot <= 0 || dot == len(full)-1 {
		return nil
	}

	var dir string
	if len(parts) > 3 {
		dir = strings.Join(parts[2:len(parts)-1], "/")
	}

	return &Path{
		Owner:        parts[0],
		Repo:         parts[1],
		DirPath:      dir,
		Filename:     full[:dot],
		Extension:    full[dot+1:],
		FullFilename: full,
	}
}

// String reassembles the address. ParsePath(p.String()) equals p.
func (p *Path) String() string {
	return p.Dir() + "/" + p.FullFilename
}

// Repository returns "owner/repo".
func (p *Path) Repository() string {
	return p.Owner + "/" + p.Repo
}

// Dir returns "owner/repo[/dir]".
func (p *Path) Dir() string {
	if p.DirPath == "" {
		return p.Repository()
	}
	return p.Repository() + "/" + p.DirPath
}

// RepoPath returns the path inside the repository, e.g. "story/ch1.md".
func (p *Path) RepoPath() string {
	if p.DirPath == "" {
		return p.FullFilename
	}
	return p.DirPath + "/" + p.FullFilename
}

// InRepository returns a copy of p rehomed to owner/repo, keeping the
// in-repository location.
func (p *Path) InRepository(owner, repo string) *Path {
	c := *p
	c.Owner = owner
	c.Repo = repo
	return &c
}

// SplitRepository splits "owner/repo" and reports whether it was well formed.
func SplitRepository(repository string) (owner, repo string, ok bool) {
	owner, repo, ok = strings.Cut(repository, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// IsHidden reports whether any segment of the slash separated name starts with a dot.
func IsHidden(name string) bool {
	for _, seg := range strings.Split(name, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	return false
}
