package dip

import (
	"regexp"
	"strings"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\(([^)]+)\.(jpg|jpeg|png)\)`)
	htmlImageRe     = regexp.MustCompile(`(?i)<img[^>]+src=["']([^"']+)["']`)
	htmlAudioRe     = regexp.MustCompile(`(?i)<audio[^>]+src=["']([^"']+)["']`)
	markdownTextRe  = regexp.MustCompile(`!?\[[^\]]*\]\(([^)]+)\.md\)`)
)

// mediaExtensions are committed from the media collection as raw bytes.
var mediaExtensions = map[string]bool{"jpg": true, "jpeg": true, "png": true, "mp3": true}

// IsMediaPath reports whether p names a binary media file.
func IsMediaPath(p string) bool {
	i := strings.LastIndex(p, ".")
	if i < 0 {
		return false
	}
	return mediaExtensions[strings.ToLower(p[i+1:])]
}

// ParseMediaLinks returns the distinct image and audio sources referenced by
// content, in order of first appearance.
func ParseMediaLinks(content string) []string {
	var out []string
	for _, m := range markdownImageRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1]+"."+m[2])
	}
	for _, m := range htmlImageRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	for _, m := range htmlAudioRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1])
	}
	return dedupe(out)
}

// ParseTextLinks returns the distinct markdown article paths linked from content.
func ParseTextLinks(content string) []string {
	var out []string
	for _, m := range markdownTextRe.FindAllStringSubmatch(content, -1) {
		out = append(out, m[1]+".md")
	}
	return dedupe(out)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
