package flashcards

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxExtracted bounds ExtractCards when max <= 0.
const DefaultMaxExtracted = 50

var (
	// "infor-\nmation" -> "information" for text pulled out of PDFs.
	hyphenBreakRe = regexp.MustCompile(`(\p{L})-\n\s*(\p{L})`)
	spacesRe      = regexp.MustCompile(`[ \t\f\v]+`)

	questionRe = regexp.MustCompile(`(?i)^(?:q|question)\s*\d*\s*[:.)]\s*(.+)$`)
	answerRe   = regexp.MustCompile(`(?i)^(?:a|answer)\s*\d*\s*[:.)]\s*(.+)$`)

	// "Osmosis: movement of water ..." or "- Mitosis - cell division ..."
	definitionRe = regexp.MustCompile(`^(?:[-*•]\s*)?([\p{Lu}][\p{L}\p{N} '()/-]{1,60}?)\s*(?::|\s[-–—]\s)\s*(.{3,})$`)

	// "Photosynthesis is the process by which ..."
	sentenceRe = regexp.MustCompile(`^([\p{Lu}][\p{L}\p{N} '-]{1,50}?)\s+(?:is|are|refers to|means)\s+(.{8,})$`)
)

// ExtractCards mines plain text (typically extracted from a PDF) for
// flashcard candidates. Explicit Q/A pairs win over definition lines, which
// win over "X is Y" sentences. Fronts are de-duplicated case-insensitively
// and at most max cards are returned.
func ExtractCards(text string, max int) []Card {
	if max <= 0 {
		max = DefaultMaxExtracted
	}
	lines := normalizeLines(text)

	out := make([]Card, 0)
	seen := make(map[string]bool)
	add := func(front, back string) bool {
		front = strings.TrimSpace(front)
		back = strings.TrimSpace(back)
		if front == "" || back == "" {
			return true
		}
		key := strings.ToLower(front)
		if seen[key] {
			return true
		}
		seen[key] = true
		out = append(out, Card{
			ID:    uuid.NewString(),
			Front: front,
			Back:  back,
			Ease:  DefaultEase,
		})
		return len(out) < max
	}

	used := make([]bool, len(lines))

	// Q/A pairs: an answer line must follow its question line.
	for i := 0; i+1 < len(lines); i++ {
		q := questionRe.FindStringSubmatch(lines[i])
		if q == nil {
			continue
		}
		a := answerRe.FindStringSubmatch(lines[i+1])
		if a == nil {
			continue
		}
		used[i], used[i+1] = true, true
		if !add(q[1], a[1]) {
			return out
		}
		i++
	}

	for i, line := range lines {
		if used[i] || questionRe.MatchString(line) || answerRe.MatchString(line) {
			continue
		}
		if m := definitionRe.FindStringSubmatch(line); m != nil && wordCount(m[1]) <= 6 {
			used[i] = true
			if !add(m[1], m[2]) {
				return out
			}
		}
	}

	for i, line := range lines {
		if used[i] {
			continue
		}
		for _, sentence := range splitSentences(line) {
			m := sentenceRe.FindStringSubmatch(sentence)
			if m == nil || wordCount(m[1]) > 4 {
				continue
			}
			if !add("What is "+m[1]+"?", strings.TrimSuffix(m[2], ".")) {
				return out
			}
		}
	}

	return out
}

func normalizeLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = hyphenBreakRe.ReplaceAllString(text, "$1$2")
	raw := strings.Split(text, "\n")
	lines := make([]string, 0, len(raw))
	for _, l := range raw {
		l = strings.TrimSpace(spacesRe.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

func splitSentences(line string) []string {
	var out []string
	start := 0
	for i := 0; i < len(line); i++ {
		if line[i] != '.' && line[i] != '!' && line[i] != '?' {
			continue
		}
		if i+1 < len(line) && line[i+1] != ' ' {
			continue
		}
		out = append(out, strings.TrimSpace(line[start:i+1]))
		start = i + 1
	}
	if rest := strings.TrimSpace(line[start:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

func wordCount(s string) int {
	return len(strings.Fields(s))
}
