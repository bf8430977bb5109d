package backend

import (
	"strings"
	"testing"

	"github.com/quarryhq/quarry/internal/model"
)

func TestParseResult_PlainJSON(t *testing.T) {
	res := ParseResult(`{"summary": "ok", "claims": [{"text": "a claim", "source_urls": ["https://example.com"], "confidence": 0.5}]}`)

	if res.Summary != "ok" {
		t.Errorf("Unexpected summary: %q", res.Summary)
	}
	if len(res.Claims) != 1 {
		t.Fatalf("Expected 1 claim, got %d", len(res.Claims))
	}
	c := res.Claims[0]
	if c.Text != "a claim" || c.Confidence != 0.5 {
		t.Errorf("Unexpected claim: %+v", c)
	}
	if len(c.SourceURLs) != 1 || c.SourceURLs[0] != "https://example.com" {
		t.Errorf("Unexpected source urls: %v", c.SourceURLs)
	}
}

func TestParseResult_FencedJSON(t *testing.T) {
	for name, content := range map[string]string{
		"json fence": "```json\n{\"summary\": \"fenced\", \"claims\": []}\n```",
		"bare fence": "```\n{\"summary\": \"fenced\", \"claims\": []}\n```",
		"padded":     "  ```json\n{\"summary\": \"fenced\", \"claims\": []}\n```  ",
	} {
		res := ParseResult(content)
		if res.Summary != "fenced" {
			t.Errorf("%s: expected summary %q, got %q", name, "fenced", res.Summary)
		}
	}
}

func TestParseResult_MissingConfidenceDefaultsToOne(t *testing.T) {
	res := ParseResult(`{"summary": "ok", "claims": [{"text": "no confidence given"}]}`)

	if len(res.Claims) != 1 {
		t.Fatalf("Expected 1 claim, got %d", len(res.Claims))
	}
	if res.Claims[0].Confidence != 1.0 {
		t.Errorf("Expected default confidence 1.0, got %v", res.Claims[0].Confidence)
	}
}

func TestParseResult_NonJSONFallsBack(t *testing.T) {
	res := ParseResult("The model rambled instead of emitting JSON.")

	if res.Summary != "The model rambled instead of emitting JSON." {
		t.Errorf("Unexpected fallback summary: %q", res.Summary)
	}
	if len(res.Claims) != 0 {
		t.Errorf("Expected no claims, got %d", len(res.Claims))
	}
	if res.Raw == "" {
		t.Error("Expected raw output to be preserved")
	}
}

func TestBuildUserMessage_NoSources(t *testing.T) {
	if got := BuildUserMessage("plain query", nil); got != "plain query" {
		t.Errorf("Expected query passthrough, got %q", got)
	}
}

func TestBuildUserMessage_TruncatesLongSources(t *testing.T) {
	long := strings.Repeat("x", maxSourceChars+100)
	msg := BuildUserMessage("q", []model.Source{
		{ID: "s1", Kind: model.SourceKindDocument, Text: long},
	})

	if !strings.Contains(msg, "[truncated]") {
		t.Error("Expected long source to be truncated")
	}
	if len(msg) > maxSourceChars+500 {
		t.Errorf("Message too long: %d chars", len(msg))
	}
}
