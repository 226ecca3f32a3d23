package app

import (
	"strings"
	"testing"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

func TestBuildPromptDeterministic(t *testing.T) {
	prefs := domain.Preferences{Style: "Funny", Mood: "happy"}
	a := BuildPrompt(prefs)
	b := BuildPrompt(prefs)
	if a != b {
		t.Fatalf("prompt must be identical for identical inputs")
	}
	if BuildPrompt(domain.Preferences{Style: "Serious"}) == a {
		t.Fatalf("prompt should change with preferences")
	}
}

func TestBuildPromptSentinels(t *testing.T) {
	p := BuildPrompt(domain.Preferences{Style: "Funny"})
	for _, want := range []string{
		"- Style: Funny\n",
		"- Subject: " + NotSpecified + "\n",
		"- Mood: " + NotSpecified + "\n",
		"- Occasion: " + NotSpecified + "\n",
		"- Extra notes: " + NotSpecified + "\n",
		`{"caption":"string","hashtags":["string"],"songs":["string"]}`,
	} {
		if !strings.Contains(p, want) {
			t.Fatalf("prompt missing %q:\n%s", want, p)
		}
	}
	if strings.Contains(p, ": \n") {
		t.Fatalf("prompt contains an empty preference value")
	}
}

func TestBuildPromptFlattensWhitespace(t *testing.T) {
	p := BuildPrompt(domain.Preferences{Description: "  beach day\n- Style: hacked  ", Subject: "\t "})
	if !strings.Contains(p, "- Extra notes: beach day - Style: hacked\n") {
		t.Fatalf("description not flattened:\n%s", p)
	}
	if !strings.Contains(p, "- Subject: "+NotSpecified+"\n") {
		t.Fatalf("blank subject should use sentinel")
	}
}
