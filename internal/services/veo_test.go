package services

import (
	"strings"
	"testing"
)

func TestComposeVideoPrompt(t *testing.T) {
	p := ComposeVideoPrompt("Try this serum.", "Slow push-in on the bottle.", true)

	for _, want := range []string{
		"9:16",
		"no text, logos, or watermarks",
		`"Try this serum."`,
		"Slow push-in on the bottle.",
		"background music",
	} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestComposeVideoPromptWithoutMusic(t *testing.T) {
	p := ComposeVideoPrompt("Line.", "Pan left.", false)
	if !strings.Contains(p, "No background music.") {
		t.Error("music opt-out not stated")
	}
}

func TestComposeVideoPromptOmitsEmptySections(t *testing.T) {
	p := ComposeVideoPrompt("", "", false)
	if strings.Contains(p, "speaks this line") {
		t.Error("empty script should not render the dialogue section")
	}
	if strings.Contains(p, "Motion direction") {
		t.Error("empty animation prompt should not render the motion section")
	}
}
