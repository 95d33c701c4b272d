// Package cards defines the character-card document model, its validation
// rules, and the export envelope written into result files and PNG metadata.
package cards

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidCard reports a model response that decoded but does not form a
// usable card.
var ErrInvalidCard = errors.New("invalid card")

// Card is the normalized character document produced from legacy input.
type Card struct {
	Name                    string         `json:"name"`
	Description             string         `json:"description,omitempty"`
	Personality             string         `json:"personality,omitempty"`
	Scenario                string         `json:"scenario,omitempty"`
	FirstMessage            string         `json:"first_mes,omitempty"`
	MessageExample          string         `json:"mes_example,omitempty"`
	CreatorNotes            string         `json:"creator_notes,omitempty"`
	SystemPrompt            string         `json:"system_prompt,omitempty"`
	PostHistoryInstructions string         `json:"post_history_instructions,omitempty"`
	AlternateGreetings      []string       `json:"alternate_greetings,omitempty"`
	CharacterBook           *Lorebook      `json:"character_book,omitempty"`
	Tags                    []string       `json:"tags,omitempty"`
	Creator                 string         `json:"creator,omitempty"`
	CharacterVersion        string         `json:"character_version,omitempty"`
	Extensions              map[string]any `json:"extensions,omitempty"`
}

// Lorebook is the card's optional world-info book.
type Lorebook struct {
	Name              string          `json:"name,omitempty"`
	Description       string          `json:"description,omitempty"`
	ScanDepth         int             `json:"scan_depth,omitempty"`
	TokenBudget       int             `json:"token_budget,omitempty"`
	RecursiveScanning bool            `json:"recursive_scanning,omitempty"`
	Entries           []LorebookEntry `json:"entries"`
	Extensions        map[string]any  `json:"extensions,omitempty"`
}

// LorebookEntry is one keyed lore snippet.
type LorebookEntry struct {
	Keys           []string       `json:"keys"`
	Content        string         `json:"content"`
	Enabled        bool           `json:"enabled"`
	InsertionOrder int            `json:"insertion_order"`
	CaseSensitive  bool           `json:"case_sensitive,omitempty"`
	Name           string         `json:"name,omitempty"`
	Priority       int            `json:"priority,omitempty"`
	Comment        string         `json:"comment,omitempty"`
	Extensions     map[string]any `json:"extensions,omitempty"`
}

// Validate checks the minimum shape a finished card must have.
func (c *Card) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: missing character name", ErrInvalidCard)
	}
	if c.CharacterBook != nil {
		for i, entry := range c.CharacterBook.Entries {
			if len(entry.Keys) == 0 && strings.TrimSpace(entry.Content) == "" {
				return fmt.Errorf("%w: lorebook entry %d has no keys and no content", ErrInvalidCard, i)
			}
		}
	}
	return nil
}

// Export is the chara_card_v3 envelope carried in result files and PNG chunks.
// The duplicated top-level fields keep older readers working.
type Export struct {
	Spec           string `json:"spec"`
	SpecVersion    string `json:"spec_version"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	Personality    string `json:"personality"`
	Scenario       string `json:"scenario"`
	FirstMessage   string `json:"first_mes"`
	MessageExample string `json:"mes_example"`
	CreatorComment string `json:"creatorcomment"`
	Avatar         string `json:"avatar"`
	Talkativeness  string `json:"talkativeness"`
	Favorite       bool   `json:"fav"`
	CreateDate     string `json:"create_date"`
	Data           Card   `json:"data"`
}

// ExportPayload wraps the card in the v3 envelope with a creation stamp.
func (c *Card) ExportPayload(now time.Time) Export {
	return Export{
		Spec:           "chara_card_v3",
		SpecVersion:    "3.0",
		Name:           c.Name,
		Description:    c.Description,
		Personality:    c.Personality,
		Scenario:       c.Scenario,
		FirstMessage:   c.FirstMessage,
		MessageExample: c.MessageExample,
		CreatorComment: "",
		Avatar:         "none",
		Talkativeness:  "0.5",
		Favorite:       false,
		CreateDate:     FormatCreateDate(now),
		Data:           *c,
	}
}

// FormatCreateDate renders the timestamp format legacy card readers expect,
// e.g. "2026-08-24 @13h 05m 09s 123ms".
func FormatCreateDate(t time.Time) string {
	return fmt.Sprintf("%s %dms", t.Format("2006-01-02 @15h 04m 05s"), t.Nanosecond()/int(time.Millisecond))
}
