package dip

import (
	"regexp"
	"strings"
)

// Issue title prefixes of the cross-repository link protocol.
const (
	TitleLinkRequest       = "Link Request:"
	TitleApplicationResult = "Application result:"
)

// LinkRequest is the parsed body of a "Link Request:" issue.
type LinkRequest struct {
	Applicant   string
	RequestFile string // the applicant's article, in the applicant's repository
	LinkToFile  string // the article the applicant wants a link from
}

// Feedback is the parsed body of an "Application result:" issue.
type Feedback struct {
	Accepted bool
	Path     string
	Reason   string
}

// Each field is matched by its English label first, then the localized one.
var (
	applicantRe   = labelPatterns("applicant", "申请者")
	requestFileRe = labelPatterns("request file", "申请的文件")
	linkToFileRe  = labelPatterns("link to file", "链接到的文件")

	acceptedRe = regexp.MustCompile(`\*\*Accepted\*\*:\s*([^\n]+)`)
	rejectedRe = regexp.MustCompile(`\*\*Rejected\*\*:\s*([^\n]+)`)
	reasonRe   = regexp.MustCompile(`\*\*Reason\*\*:\s*([^\n]+)`)
)

const (
	acceptedMarker = "✅ **Accepted**"
	rejectedMarker = "❌ **Rejected**"
)

func labelPatterns(english, localized string) []*regexp.Regexp {
	return []*regexp.Regexp{
		regexp.MustCompile(`(?i)\*\*` + regexp.QuoteMeta(english) + `\*\*:\s*([^\n]+)`),
		regexp.MustCompile(`\*\*` + regexp.QuoteMeta(localized) + `\*\*:\s*([^\n]+)`),
	}
}

func firstMatch(body string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(body); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

// ParseLinkRequest extracts the request fields from an issue body. It
// returns nil unless both file paths are present.
func ParseLinkRequest(body string) *LinkRequest {
	r := &LinkRequest{
		Applicant:   firstMatch(body, applicantRe),
		RequestFile: firstMatch(body, requestFileRe),
		LinkToFile:  firstMatch(body, linkToFileRe),
	}
	if r.RequestFile == "" || r.LinkToFile == "" {
		return nil
	}
	return r
}

// FormatLinkRequest renders a link request body.
func FormatLinkRequest(r LinkRequest) string {
	return "**applicant**: " + r.Applicant + "\n" +
		"**request file**: " + r.RequestFile + "\n" +
		"**link to file**: " + r.LinkToFile
}

// ParseFeedback extracts the outcome of a link request. It returns nil when
// body carries neither marker.
func ParseFeedback(body string) *Feedback {
	switch {
	case strings.Contains(body, acceptedMarker):
		f := &Feedback{Accepted: true}
		if m := acceptedRe.FindStringSubmatch(body); m != nil {
			f.Path = strings.TrimSpace(m[1])
		}
		return f
	case strings.Contains(body, rejectedMarker):
		f := &Feedback{}
		if m := rejectedRe.FindStringSubmatch(body); m != nil {
			f.Path = strings.TrimSpace(m[1])
		}
		if m := reasonRe.FindStringSubmatch(body); m != nil {
			f.Reason = strings.TrimSpace(m[1])
		}
		return f
	default:
		return nil
	}
}

// FormatAccepted renders the body announcing an accepted request.
func FormatAccepted(requestFile string) string {
	return acceptedMarker + ": " + requestFile
}

// FormatRejected renders the body announcing a rejected request.
func FormatRejected(linkToFile, reason string) string {
	return rejectedMarker + ": " + linkToFile + "\n**Reason**: " + reason
}
