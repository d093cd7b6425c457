package dip

import (
	"strconv"
	"strings"
	"time"
)

// CommentarySeparator divides an article body from trailing author commentary.
const CommentarySeparator = "-*-*-"

// Header line prefixes, in the order they must appear.
const (
	prefixPenName    = "pen_name:"
	prefixVersion    = "version:"
	prefixUpdateTime = "update_time:"
	prefixCreateTime = "create_time:"
)

var headerPrefixes = [4]string{prefixPenName, prefixVersion, prefixUpdateTime, prefixCreateTime}

// timeLayout matches what browsers produce for Date.toISOString.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Metadata is the result of splitting the structural header from an article.
// When HasHeader is false every header field is empty and Content holds the
// whole (trimmed) input.
type Metadata struct {
	HasHeader  bool
	Header     string
	PenName    string
	Version    string
	UpdateTime string
	CreateTime string
	Content    string
}

// ParseArticleMetadata splits the four line header from content. The
// commentary separator is left in Content; see SplitCommentary.
func ParseArticleMetadata(content string) *Metadata {
	lines := strings.Split(content, "\n")
	if len(lines) < len(headerPrefixes) {
		return &Metadata{Content: strings.TrimSpace(content)}
	}
	var fields [4]string
	for i, prefix := range headerPrefixes {
		if !strings.HasPrefix(lines[i], prefix) {
			return &Metadata{Content: strings.TrimSpace(content)}
		}
		fields[i] = strings.TrimSpace(lines[i][len(prefix):])
	}

	return &Metadata{
		HasHeader:  true,
		Header:     strings.TrimSpace(strings.Join(lines[:4], "\n")),
		PenName:    fields[0],
		Version:    fields[1],
		UpdateTime: fields[2],
		CreateTime: fields[3],
		Content:    strings.TrimSpace(strings.Join(lines[4:], "\n")),
	}
}

// VersionNumber returns the parsed header version, or 0 when absent or malformed.
func (m *Metadata) VersionNumber() int {
	n, err := strconv.Atoi(m.Version)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// SplitCommentary separates the body from author commentary at the first
// separator. ok is false when there is no separator.
func SplitCommentary(content string) (body, commentary string, ok bool) {
	i := strings.Index(content, CommentarySeparator)
	if i < 0 {
		return strings.TrimSpace(content), "", false
	}
	body = strings.TrimSpace(content[:i])
	commentary = strings.TrimSpace(content[i+len(CommentarySeparator):])
	return body, commentary, true
}

// NewArticleContent is the content of a file that has never been saved.
func NewArticleContent(penName string) string {
	return prefixPenName + penName + "\n" +
		prefixVersion + "0\n" +
		prefixUpdateTime + "\n" +
		prefixCreateTime + "\n"
}

// BuildFullContent renders a saved article. The version is one more than
// prev's, update_time is now and create_time is kept from prev when set.
// prev may be nil for content that has no header yet.
func BuildFullContent(prev *Metadata, penName, body, commentary string, now time.Time) string {
	version := 1
	created := now.UTC().Format(timeLayout)
	if prev != nil && prev.HasHeader {
		version = prev.VersionNumber() + 1
		if prev.CreateTime != "" {
			created = prev.CreateTime
		}
	}

	var b strings.Builder
	b.WriteString(prefixPenName + penName + "\n")
	b.WriteString(prefixVersion + strconv.Itoa(version) + "\n")
	b.WriteString(prefixUpdateTime + now.UTC().Format(timeLayout) + "\n")
	b.WriteString(prefixCreateTime + created + "\n")
	b.WriteString(strings.TrimSpace(body))
	if c := strings.TrimSpace(commentary); c != "" {
		b.WriteString("\n" + CommentarySeparator + "\n" + c)
	}
	return b.String()
}

// Rebuild bumps the version of content after its body was rewritten by
// rewrite. The pen name, creation time and commentary are preserved.
func Rebuild(content string, now time.Time, rewrite func(body string) string) string {
	meta := ParseArticleMetadata(content)
	body, commentary, _ := SplitCommentary(meta.Content)
	return BuildFullContent(meta, meta.PenName, rewrite(body), commentary, now)
}
