package cards

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestValidateRequiresName(t *testing.T) {
	card := &Card{Description: "a character with no name"}
	if err := card.Validate(); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
	card.Name = "   "
	if err := card.Validate(); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("whitespace name should fail, got %v", err)
	}
	card.Name = "Eve"
	if err := card.Validate(); err != nil {
		t.Fatalf("valid card rejected: %v", err)
	}
}

func TestValidateRejectsEmptyLorebookEntry(t *testing.T) {
	card := &Card{
		Name: "Eve",
		CharacterBook: &Lorebook{
			Entries: []LorebookEntry{{Enabled: true}},
		},
	}
	if err := card.Validate(); !errors.Is(err, ErrInvalidCard) {
		t.Fatalf("expected ErrInvalidCard, got %v", err)
	}
}

func TestExportPayloadEnvelope(t *testing.T) {
	card := &Card{
		Name:        "Eve",
		Description: "curious",
		Tags:        []string{"sci-fi"},
	}
	now := time.Date(2026, 8, 24, 13, 5, 9, 123*int(time.Millisecond), time.UTC)
	payload := card.ExportPayload(now)

	if payload.Spec != "chara_card_v3" || payload.SpecVersion != "3.0" {
		t.Fatalf("wrong envelope: %s %s", payload.Spec, payload.SpecVersion)
	}
	if payload.CreateDate != "2026-08-24 @13h 05m 09s 123ms" {
		t.Fatalf("wrong create_date: %q", payload.CreateDate)
	}
	if payload.Talkativeness != "0.5" || payload.Avatar != "none" || payload.Favorite {
		t.Fatalf("wrong legacy defaults: %+v", payload)
	}
	if payload.Name != "Eve" || payload.Data.Name != "Eve" {
		t.Fatal("name not mirrored into envelope and data")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"character_book"`) {
		t.Fatal("absent lorebook should be omitted from data")
	}
	if !strings.Contains(string(raw), `"creatorcomment":""`) {
		t.Fatal("creatorcomment must be present even when empty")
	}
}

func TestUserPromptWrapsSource(t *testing.T) {
	prompt := UserPrompt("  Name: Eve\nPersonality: curious  ")
	if !strings.Contains(prompt, "--- BEGIN SOURCE ---\nName: Eve") {
		t.Fatalf("source not trimmed into wrapper: %q", prompt)
	}
	if !strings.HasSuffix(prompt, "--- END SOURCE ---") {
		t.Fatalf("missing end marker: %q", prompt)
	}
}
