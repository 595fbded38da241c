package agent

import (
	"regexp"
	"strings"
)

var (
	jaCommaRuns    = regexp.MustCompile(`、{2,}`)
	jaPeriodRuns   = regexp.MustCompile(`。{2,}`)
	dotRuns        = regexp.MustCompile(`\.{4,}`)
	ellipsisRuns   = regexp.MustCompile(`…{2,}`)
	leadingConj    = regexp.MustCompile(`^(が|でも|しかし|ですが|だけど)[、,。]?\s*`)
	newlineRuns    = regexp.MustCompile(`\n{3,}`)
	quotePairs     = [][2]string{{`"`, `"`}, {"“", "”"}, {"「", "」"}, {"'", "'"}}
)

// cleanResponse strips protocol tags and tidies up the model's text
// before it reaches the user. Tag removal runs twice to catch tags
// revealed by the first pass.
func cleanResponse(text string) string {
	for i := 0; i < 2; i++ {
		text = thoughtPattern.ReplaceAllString(text, "")
		text = callPattern.ReplaceAllString(text, "")
		text = memoryPattern.ReplaceAllString(text, "")
		text = emotionPattern.ReplaceAllString(text, "")
	}
	text = strings.TrimSpace(text)

	text = stripOuterQuotes(text)

	text = jaCommaRuns.ReplaceAllString(text, "、")
	text = jaPeriodRuns.ReplaceAllString(text, "。")
	text = dotRuns.ReplaceAllString(text, "...")
	text = ellipsisRuns.ReplaceAllString(text, "…")

	text = strings.TrimSpace(leadingConj.ReplaceAllString(text, ""))

	text = newlineRuns.ReplaceAllString(text, "\n\n")

	return text
}

// stripOuterQuotes removes a single pair of wrapping quotes. Quotes
// inside the text are left alone.
func stripOuterQuotes(text string) string {
	runes := []rune(text)
	if len(runes) < 2 {
		return text
	}
	first, last := string(runes[0]), string(runes[len(runes)-1])
	for _, p := range quotePairs {
		if first == p[0] && last == p[1] {
			return strings.TrimSpace(string(runes[1 : len(runes)-1]))
		}
	}
	return text
}
