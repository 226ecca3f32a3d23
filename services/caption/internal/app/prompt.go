package app

import (
	"strings"

	"github.com/Akshay1705/caption.ai/pkg/domain"
)

// NotSpecified stands in for any preference the user left blank.
const NotSpecified = "Not specified"

// BuildPrompt renders the instruction document sent alongside the image.
// The output depends only on prefs.
func BuildPrompt(prefs domain.Preferences) string {
	var b strings.Builder
	b.WriteString("You are a creative Instagram caption generator.\n\n")
	b.WriteString("Step 1: Analyze the attached image (scenery, objects, colors, vibe, emotions).\n")
	b.WriteString("Step 2: Blend that analysis with the user's preferences:\n")
	writePref(&b, "Style", prefs.Style)
	writePref(&b, "Subject", prefs.Subject)
	writePref(&b, "Mood", prefs.Mood)
	writePref(&b, "Occasion", prefs.Occasion)
	writePref(&b, "Extra notes", prefs.Description)
	b.WriteString("\nYour task:\n")
	b.WriteString("1. Write one short, natural caption of at most 3 sentences. Use emojis only if they fit.\n")
	b.WriteString("2. Suggest 8 to 10 hashtags, half specific to the image and half to the vibe or occasion. Do not prefix them with '#'.\n")
	b.WriteString("3. Suggest 2 to 3 popular songs that match the photo's mood and aesthetic, each formatted as \"Title - Artist\".\n")
	b.WriteString("\nRules:\n")
	b.WriteString("- Do not output explanations or markdown.\n")
	b.WriteString("- Respond with a single minified JSON object and nothing else, using exactly this shape:\n")
	b.WriteString(`{"caption":"string","hashtags":["string"],"songs":["string"]}`)
	b.WriteString("\n")
	return b.String()
}

func writePref(b *strings.Builder, label, value string) {
	b.WriteString("- ")
	b.WriteString(label)
	b.WriteString(": ")
	b.WriteString(prefValue(value))
	b.WriteString("\n")
}

// prefValue flattens whitespace so user text cannot break the list layout.
func prefValue(v string) string {
	v = strings.Join(strings.Fields(v), " ")
	if v == "" {
		return NotSpecified
	}
	return v
}
