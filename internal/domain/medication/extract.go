package medication

import (
	"regexp"
	"strings"
)

// DefaultTitleMaxLength bounds the derived title.
const DefaultTitleMaxLength = 200

// Dosage patterns, tried in priority order. The first pattern that matches
// anywhere in the text wins, even if a lower-priority pattern would have
// matched earlier in the string.
var (
	// 500/125 mg, 0.5/0.25ml
	dosageRatioRe = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*/\s*\d+(?:\.\d+)?\s*(?:mg|ml)\b`)
	// 200mg, 0.5 ml, 100 mcg, 10 IU, 2 units
	dosageSimpleRe = regexp.MustCompile(`(?i)\d+(?:\.\d+)?\s*(?:mg|g|ml|mcg|iu|units?)\b`)
	// 5% concentration
	dosagePercentRe = regexp.MustCompile(`\d+(?:\.\d+)?%`)
)

// Title fallback: a capitalized word of at least three letters, optionally
// carrying a drug-like suffix.
var titleWordRe = regexp.MustCompile(`\b[A-Z][a-z]{2,}(?:il|in|ine|ol|one|ide)?\b`)

// frequencyRes are tried in order; the first match fills the frequency key.
// Each pattern captures the value to store in group 1.
var frequencyRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(\d+\s*times?\s*(?:per|a|daily|day))`),
	regexp.MustCompile(`(?i)(once|twice|three times)\s*(?:per|a)?\s*(?:daily|day)`),
	regexp.MustCompile(`(?i)(every\s+\d+\s+hours?)`),
}

var timingRe = regexp.MustCompile(`(?i)(morning|evening|bedtime|night)`)

// expiryRes are tried in order: full date first, then month/year.
var expiryRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:exp|expiry|expires?)[:\s]+(\d{1,4}[-/]\d{1,4}[-/]\d{1,4})`),
	regexp.MustCompile(`(?i)(?:exp|expiry|expires?)[:\s]+(\d{1,4}[-/]\d{1,4})`),
}

// ExtractDosage scans text for the first dosage expression in priority order:
// ratio (500/125 mg), simple (200mg), percentage (5%). The matched substring
// is returned with its original casing and internal spacing, trimmed at the
// edges. Returns "" when no pattern matches.
func ExtractDosage(text string) string {
	for _, re := range []*regexp.Regexp{dosageRatioRe, dosageSimpleRe, dosagePercentRe} {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// ExtractTitle derives a display title from the label text and the linked
// entities, trying in order:
//
//  1. The canonical name of the first chemical-class entity, with the dosage
//     appended when one was found.
//  2. The first capitalized drug-like word in the text.
//  3. The first three whitespace-delimited tokens.
//
// The result is truncated to maxLength runes. Returns "" only when the text
// has no tokens at all. maxLength values below 1 fall back to
// DefaultTitleMaxLength.
func ExtractTitle(text string, entities []LinkedEntity, maxLength int) string {
	if maxLength < 1 {
		maxLength = DefaultTitleMaxLength
	}

	for _, e := range entities {
		if e.Label != LabelChemical {
			continue
		}
		name := e.CanonicalName
		if name == "" {
			name = e.Text
		}
		if name == "" {
			continue
		}
		if dosage := ExtractDosage(text); dosage != "" {
			name = name + " " + dosage
		}
		return truncate(name, maxLength)
	}

	if m := titleWordRe.FindString(text); m != "" {
		return truncate(m, maxLength)
	}

	if words := strings.Fields(text); len(words) > 0 {
		if len(words) > 3 {
			words = words[:3]
		}
		return truncate(strings.Join(words, " "), maxLength)
	}

	return ""
}

// FormatActiveIngredients joins the canonical names of all chemical-class
// entities with ", ", de-duplicated case-insensitively while keeping the
// casing of the first occurrence. An empty entity list yields "".
func FormatActiveIngredients(entities []LinkedEntity) string {
	seen := make(map[string]struct{})
	var unique []string
	for _, e := range entities {
		if e.Label != LabelChemical {
			continue
		}
		name := e.CanonicalName
		if name == "" {
			name = e.Text
		}
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, name)
	}
	return strings.Join(unique, ", ")
}

// ExtractPrescriptionDetails builds the prescription-metadata map from the
// label text and linked entities. Each category is tested independently;
// categories without a match are simply absent from the map. The returned map
// is never nil.
func ExtractPrescriptionDetails(text string, entities []LinkedEntity) map[string]interface{} {
	details := make(map[string]interface{})

	for _, re := range frequencyRes {
		if m := re.FindStringSubmatch(text); m != nil {
			details[DetailKeyFrequency] = strings.TrimSpace(m[1])
			break
		}
	}

	if m := timingRe.FindStringSubmatch(text); m != nil {
		details[DetailKeyTiming] = strings.TrimSpace(m[1])
	}

	for _, re := range expiryRes {
		if m := re.FindStringSubmatch(text); m != nil {
			details[DetailKeyExpiryDate] = strings.TrimSpace(m[1])
			break
		}
	}

	var conditions []string
	for _, e := range entities {
		if e.Label != LabelDisease {
			continue
		}
		name := e.CanonicalName
		if name == "" {
			name = e.Text
		}
		if name != "" {
			conditions = append(conditions, name)
		}
	}
	if len(conditions) > 0 {
		details[DetailKeyRelatedConditions] = conditions
	}

	var cuis []string
	for _, e := range entities {
		if e.KnowledgeBaseID != "" {
			cuis = append(cuis, e.KnowledgeBaseID)
		}
	}
	if len(cuis) > 0 {
		details[DetailKeyCUIIdentifiers] = cuis
	}

	return details
}

// truncate limits s to max runes without splitting a multi-byte character.
func truncate(s string, max int) string {
	if max < 1 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
