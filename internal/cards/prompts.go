package cards

import "strings"

// SystemPrompt instructs the model to emit exactly one card JSON object.
const SystemPrompt = `You convert legacy character descriptions into a single JSON object for a character card.

Rules:
- Respond with one JSON object and nothing else. No markdown fences, no commentary.
- Use exactly these keys: name, description, personality, scenario, first_mes, mes_example, creator_notes, system_prompt, post_history_instructions, alternate_greetings, character_book, tags, creator, character_version, extensions.
- "name" is required and must be a non-empty string.
- "alternate_greetings" and "tags" are arrays of strings; omit keys you have no content for rather than inventing filler.
- "character_book", when present, is {"entries": [{"keys": [...], "content": "...", "enabled": true, "insertion_order": N}]}.
- Preserve the source material's language, tone, and formatting markers (asterisks, quotes) inside field values.
- Never summarize away detail that fits a field; move stray facts into creator_notes.`

// UserPrompt wraps the raw legacy text for the conversion request.
func UserPrompt(input string) string {
	var b strings.Builder
	b.WriteString("Convert the following character description into the card JSON object.\n\n")
	b.WriteString("--- BEGIN SOURCE ---\n")
	b.WriteString(strings.TrimSpace(input))
	b.WriteString("\n--- END SOURCE ---")
	return b.String()
}
