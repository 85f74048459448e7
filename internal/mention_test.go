package internal

import (
	"reflect"
	"testing"
)

func TestParseMentionTrigger(t *testing.T) {
	query, ok := ParseMentionTrigger("hello @al", 9)
	if !ok || query != "al" {
		t.Fatalf("expected trigger with query %q, got %q ok=%v", "al", query, ok)
	}

	// a bare @ triggers with an empty query.
	query, ok = ParseMentionTrigger("hello @", 7)
	if !ok || query != "" {
		t.Fatalf("expected empty query trigger, got %q ok=%v", query, ok)
	}

	// a space ends the token, so no trigger.
	if _, ok := ParseMentionTrigger("hello @al ", 10); ok {
		t.Fatalf("expected no trigger after a space")
	}

	// only the text before the cursor matters.
	query, ok = ParseMentionTrigger("hello @alice", 9)
	if !ok || query != "al" {
		t.Fatalf("expected mid-token trigger %q, got %q ok=%v", "al", query, ok)
	}

	if _, ok := ParseMentionTrigger("hello", 5); ok {
		t.Fatalf("expected no trigger without an @")
	}
	if _, ok := ParseMentionTrigger("hello", 99); ok {
		t.Fatalf("expected out-of-range cursor to be rejected")
	}
}

func TestMentionSuggestions(t *testing.T) {
	known := []string{"alice", "Bob", "carol", "malcolm"}

	got := MentionSuggestions("al", known)
	want := []string{"alice", "malcolm"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected suggestions: %v", got)
	}

	// matching is case-insensitive.
	got = MentionSuggestions("bo", known)
	if !reflect.DeepEqual(got, []string{"Bob"}) {
		t.Fatalf("unexpected suggestions: %v", got)
	}

	// empty query matches everyone.
	if got := MentionSuggestions("", known); len(got) != len(known) {
		t.Fatalf("expected all users for empty query, got %v", got)
	}
}

func TestApplyMentionSelection(t *testing.T) {
	text, cursor := ApplyMentionSelection("hi @al", 6, "alice")
	if text != "hi @alice " {
		t.Fatalf("unexpected text: %q", text)
	}
	if cursor != len("hi @alice ") {
		t.Fatalf("unexpected cursor: %d", cursor)
	}

	// text after the cursor is preserved.
	text, cursor = ApplyMentionSelection("hi @al how are you", 6, "alice")
	if text != "hi @alice  how are you" {
		t.Fatalf("unexpected text: %q", text)
	}
	if cursor != len("hi @alice ") {
		t.Fatalf("unexpected cursor: %d", cursor)
	}
}

func TestMentionsUser(t *testing.T) {
	if !MentionsUser("ping @Alice please", "alice") {
		t.Fatalf("expected case-insensitive match")
	}
	if MentionsUser("ping @alicette", "alice") {
		t.Fatalf("expected word boundary to prevent prefix match")
	}
	if MentionsUser("no mention here", "alice") {
		t.Fatalf("expected no match")
	}
	if MentionsUser("@alice", "") {
		t.Fatalf("expected empty username to never match")
	}
}

func TestHighlightMentions(t *testing.T) {
	segments := HighlightMentions("hi @alice and @bob!")
	want := []MentionSegment{
		{Text: "hi "},
		{Text: "@alice", Mention: true},
		{Text: " and "},
		{Text: "@bob", Mention: true},
		{Text: "!"},
	}
	if !reflect.DeepEqual(segments, want) {
		t.Fatalf("unexpected segments: %+v", segments)
	}

	segments = HighlightMentions("plain text")
	if len(segments) != 1 || segments[0].Mention {
		t.Fatalf("expected single plain segment, got %+v", segments)
	}

	if segments := HighlightMentions(""); segments != nil {
		t.Fatalf("expected nil for empty text, got %+v", segments)
	}
}
