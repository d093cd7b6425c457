package dip

import (
	"strings"
	"testing"
	"time"
)

func TestParseArticleMetadata(t *testing.T) {
	t.Run("full header", func(t *testing.T) {
		content := "pen_name:Bob\nversion:3\nupdate_time:2024-01-01\ncreate_time:2023-01-01\nHello\n-*-*-\nNote"
		m := ParseArticleMetadata(content)

		if !m.HasHeader {
			t.Fatal("HasHeader = false, want true")
		}
		if m.PenName != "Bob" || m.Version != "3" {
			t.Errorf("PenName, Version = %q, %q; want Bob, 3", m.PenName, m.Version)
		}
		if m.UpdateTime != "2024-01-01" || m.CreateTime != "2023-01-01" {
			t.Errorf("times = %q, %q", m.UpdateTime, m.CreateTime)
		}
		if m.Content != "Hello\n-*-*-\nNote" {
			t.Errorf("Content = %q", m.Content)
		}
		if m.VersionNumber() != 3 {
			t.Errorf("VersionNumber() = %d, want 3", m.VersionNumber())
		}
	})

	t.Run("values are trimmed", func(t *testing.T) {
		m := ParseArticleMetadata("pen_name: Bob \nversion: 7\nupdate_time:\ncreate_time:\n\n  body  \n")
		if m.PenName != "Bob" || m.VersionNumber() != 7 || m.Content != "body" {
			t.Errorf("got %+v", m)
		}
	})

	tests := []struct {
		name    string
		content string
	}{
		{name: "no header", content: "  just text\nmore  "},
		{name: "too few lines", content: "pen_name:Bob\nversion:1"},
		{name: "out of order", content: "version:1\npen_name:Bob\nupdate_time:\ncreate_time:\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := ParseArticleMetadata(tt.content)
			if m.HasHeader {
				t.Error("HasHeader = true, want false")
			}
			if m.PenName != "" || m.Version != "" {
				t.Errorf("header fields set: %+v", m)
			}
			if m.Content != strings.TrimSpace(tt.content) {
				t.Errorf("Content = %q", m.Content)
			}
			if m.VersionNumber() != 0 {
				t.Errorf("VersionNumber() = %d, want 0", m.VersionNumber())
			}
		})
	}
}

func TestSplitCommentary(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		body       string
		commentary string
		ok         bool
	}{
		{name: "separator", input: "Hello\n-*-*-\nNote", body: "Hello", commentary: "Note", ok: true},
		{name: "no separator", input: " Hello ", body: "Hello"},
		{name: "first separator wins", input: "a -*-*- b -*-*- c", body: "a", commentary: "b -*-*- c", ok: true},
		{name: "empty commentary", input: "a\n-*-*-", body: "a", ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, commentary, ok := SplitCommentary(tt.input)
			if body != tt.body || commentary != tt.commentary || ok != tt.ok {
				t.Errorf("SplitCommentary(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.input, body, commentary, ok, tt.body, tt.commentary, tt.ok)
			}
		})
	}
}

func TestBuildFullContent(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("first save", func(t *testing.T) {
		got := BuildFullContent(nil, "alice", " Once upon a time. ", "", now)
		want := "pen_name:alice\nversion:1\nupdate_time:2025-03-01T09:00:00.000Z\ncreate_time:2025-03-01T09:00:00.000Z\nOnce upon a time."
		if got != want {
			t.Errorf("BuildFullContent() =\n%q\nwant\n%q", got, want)
		}
	})

	t.Run("new article content counts as version 0", func(t *testing.T) {
		prev := ParseArticleMetadata(NewArticleContent("alice"))
		got := ParseArticleMetadata(BuildFullContent(prev, "alice", "x", "", now))
		if got.Version != "1" {
			t.Errorf("Version = %q, want 1", got.Version)
		}
		if got.CreateTime != "2025-03-01T09:00:00.000Z" {
			t.Errorf("CreateTime = %q", got.CreateTime)
		}
	})

	t.Run("later save keeps creation time", func(t *testing.T) {
		prev := ParseArticleMetadata("pen_name:alice\nversion:4\nupdate_time:x\ncreate_time:2020-01-01T00:00:00.000Z\nold")
		got := ParseArticleMetadata(BuildFullContent(prev, "alice", "new", "aside", now.In(time.FixedZone("x", 3600))))
		if got.Version != "5" {
			t.Errorf("Version = %q, want 5", got.Version)
		}
		if got.CreateTime != "2020-01-01T00:00:00.000Z" {
			t.Errorf("CreateTime = %q", got.CreateTime)
		}
		if got.UpdateTime != "2025-03-01T09:00:00.000Z" {
			t.Errorf("UpdateTime = %q, want UTC", got.UpdateTime)
		}
		if got.Content != "new\n-*-*-\naside" {
			t.Errorf("Content = %q", got.Content)
		}
	})
}

func TestBuildFullContent_PreservesBody(t *testing.T) {
	inputs := []string{
		"plain text",
		"pen_name:Bob\nversion:3\nupdate_time:a\ncreate_time:b\nHello\n\nWorld",
		"line one\n\n# heading\n- item",
	}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, x := range inputs {
		m := ParseArticleMetadata(x)
		rebuilt := ParseArticleMetadata(BuildFullContent(m, "p", m.Content, "", now))
		if rebuilt.Content != m.Content {
			t.Errorf("body changed: %q -> %q", m.Content, rebuilt.Content)
		}
	}
}

func TestRebuild(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	content := "pen_name:bob\nversion:2\nupdate_time:x\ncreate_time:c\nHello Alice\n-*-*-\nthanks"

	got := ParseArticleMetadata(Rebuild(content, now, strings.ToUpper))
	if got.PenName != "bob" || got.Version != "3" || got.CreateTime != "c" {
		t.Errorf("header = %+v", got)
	}
	if got.Content != "HELLO ALICE\n-*-*-\nthanks" {
		t.Errorf("Content = %q", got.Content)
	}
}
