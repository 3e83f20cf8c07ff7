package orchestrator

import "strings"

// maxTitleWords caps the generated display title.
const maxTitleWords = 5

// CleanTitle normalizes a model-generated title: strips quoting and
// trailing punctuation, collapses whitespace, and truncates to
// maxTitleWords. Returns "" when nothing usable remains.
func CleanTitle(raw string) string {
	title := strings.TrimSpace(raw)

	// Models like to quote their answers despite instructions.
	title = strings.Trim(title, `"'`)
	title = strings.TrimSuffix(title, ".")
	title = strings.TrimSpace(title)

	// Some models prefix a label anyway.
	if len(title) >= 6 && strings.EqualFold(title[:6], "title:") {
		title = strings.TrimSpace(title[6:])
	}

	words := strings.Fields(title)
	if len(words) == 0 {
		return ""
	}
	if len(words) > maxTitleWords {
		words = words[:maxTitleWords]
	}
	return strings.Join(words, " ")
}
