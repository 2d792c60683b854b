package llm

import (
	"context"
	"strings"
	"testing"
)

var testCandidates = []string{"Quilpué", "Villa Alemana", "Viña del Mar"}

func TestParseAnswerAcceptsCandidate(t *testing.T) {
	got, err := parseAnswer(`{"comuna": "Quilpué"}`, testCandidates)
	if err != nil {
		t.Fatalf("parseAnswer failed: %v", err)
	}
	if got != "Quilpué" {
		t.Errorf("expected Quilpué, got %q", got)
	}
}

func TestParseAnswerToleratesAccentDrift(t *testing.T) {
	// The model often answers without the accent; the canonical form from
	// the candidate list must come back regardless.
	got, err := parseAnswer(`{"comuna": "quilpue"}`, testCandidates)
	if err != nil {
		t.Fatalf("parseAnswer failed: %v", err)
	}
	if got != "Quilpué" {
		t.Errorf("expected canonical Quilpué, got %q", got)
	}
}

func TestParseAnswerRejectsUnknownComuna(t *testing.T) {
	if _, err := parseAnswer(`{"comuna": "Narnia"}`, testCandidates); err == nil {
		t.Fatal("expected error for a comuna outside the candidate list")
	}
}

func TestParseAnswerRejectsEmptyAnswer(t *testing.T) {
	if _, err := parseAnswer(`{"comuna": ""}`, testCandidates); err == nil {
		t.Fatal("expected error for empty answer")
	}
}

func TestParseAnswerRejectsInvalidJSON(t *testing.T) {
	if _, err := parseAnswer(`no soy json`, testCandidates); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseAnswerStripsMarkdownFences(t *testing.T) {
	text := "```json\n{\"comuna\": \"Villa Alemana\"}\n```"
	got, err := parseAnswer(text, testCandidates)
	if err != nil {
		t.Fatalf("parseAnswer failed: %v", err)
	}
	if got != "Villa Alemana" {
		t.Errorf("expected Villa Alemana, got %q", got)
	}
}

func TestCleanJSONBlock(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"```\n{\"a\": 1}\n```", `{"a": 1}`},
		{`{"a": 1}`, `{"a": 1}`},
		{"  {\"a\": 1}  ", `{"a": 1}`},
	}

	for _, tc := range cases {
		if got := cleanJSONBlock(tc.in); got != tc.want {
			t.Errorf("cleanJSONBlock(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestBuildPromptContainsQueryAndCandidates(t *testing.T) {
	prompt := buildPrompt("farmacia en kilpue", testCandidates)

	if !strings.Contains(prompt, "farmacia en kilpue") {
		t.Error("prompt is missing the query")
	}
	for _, candidate := range testCandidates {
		if !strings.Contains(prompt, candidate) {
			t.Errorf("prompt is missing candidate %q", candidate)
		}
	}
	if !strings.Contains(prompt, "JSON") {
		t.Error("prompt does not request JSON output")
	}
}

func TestNewGeminiProviderRequiresKey(t *testing.T) {
	if _, err := NewGeminiProvider(context.Background(), "", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}
