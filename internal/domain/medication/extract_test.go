package medication

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractDosage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"simple with space", "Ibuprofen 500 mg tablets", "500 mg"},
		{"simple no space", "Take 200mg daily", "200mg"},
		{"decimal ml", "0.5ml twice daily", "0.5ml"},
		{"micrograms", "levothyroxine 100 mcg", "100 mcg"},
		{"international units", "insulin 10 IU per dose", "10 IU"},
		{"ratio dosage", "co-amoxiclav 500/125 mg tablets", "500/125 mg"},
		{"percentage", "hydrocortisone 1% cream", "1%"},
		{"no dosage", "Take this medication as prescribed", ""},
		{"empty text", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractDosage(tt.text))
		})
	}
}

// A ratio match anywhere in the text beats a simple match that occurs
// earlier: priority is per pattern, not per position.
func TestExtractDosage_PatternPriorityOverPosition(t *testing.T) {
	assert.Equal(t, "500/125 mg", ExtractDosage("take 200mg now, then 500/125 mg later"))
}

func TestExtractTitle_FromChemicalEntity(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "pain", Label: LabelDisease, CanonicalName: "Pain", Confidence: 0.8},
		{Text: "ibuprofen", Label: LabelChemical, CanonicalName: "Ibuprofen", Confidence: 0.9},
	}

	title := ExtractTitle("Ibuprofen 200mg tablets", entities, 200)
	assert.Equal(t, "Ibuprofen 200mg", title)
}

func TestExtractTitle_EntityWithoutDosage(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "paracetamol", Label: LabelChemical, CanonicalName: "Acetaminophen", Confidence: 0.9},
	}

	title := ExtractTitle("Take as prescribed", entities, 200)
	assert.Equal(t, "Acetaminophen", title)
}

func TestExtractTitle_FallbackCapitalizedWord(t *testing.T) {
	title := ExtractTitle("the label says Amoxicillin capsules", nil, 200)
	assert.Equal(t, "Amoxicillin", title)
}

func TestExtractTitle_FallbackFirstWords(t *testing.T) {
	title := ExtractTitle("take with plenty of water", nil, 200)
	assert.Equal(t, "take with plenty", title)
}

func TestExtractTitle_EmptyText(t *testing.T) {
	assert.Equal(t, "", ExtractTitle("", nil, 200))
	assert.Equal(t, "", ExtractTitle("   \t  ", nil, 200))
}

func TestExtractTitle_Truncation(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "x", Label: LabelChemical, CanonicalName: strings.Repeat("A", 300), Confidence: 0.9},
	}

	title := ExtractTitle("no dosage here", entities, 200)
	assert.Len(t, title, 200)
}

func TestFormatActiveIngredients(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "ibuprofen", Label: LabelChemical, CanonicalName: "Ibuprofen"},
		{Text: "pain", Label: LabelDisease, CanonicalName: "Pain"},
		{Text: "caffeine", Label: LabelChemical, CanonicalName: "Caffeine"},
	}

	assert.Equal(t, "Ibuprofen, Caffeine", FormatActiveIngredients(entities))
}

func TestFormatActiveIngredients_CaseInsensitiveDedup(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "a", Label: LabelChemical, CanonicalName: "Ibuprofen"},
		{Text: "b", Label: LabelChemical, CanonicalName: "ibuprofen"},
		{Text: "c", Label: LabelChemical, CanonicalName: "IBUPROFEN"},
	}

	assert.Equal(t, "Ibuprofen", FormatActiveIngredients(entities))

	// Dedup is idempotent under duplicate case-variants: the single-entry
	// input formats identically.
	assert.Equal(t,
		FormatActiveIngredients(entities[:1]),
		FormatActiveIngredients(entities),
	)
}

func TestFormatActiveIngredients_Empty(t *testing.T) {
	assert.Equal(t, "", FormatActiveIngredients(nil))
	assert.Equal(t, "", FormatActiveIngredients([]LinkedEntity{
		{Text: "pain", Label: LabelDisease, CanonicalName: "Pain"},
	}))
}

func TestExtractPrescriptionDetails_Frequency(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"numeric times", "take 3 times per day", "3 times per"},
		{"twice daily", "Take 2 tablets twice daily for pain", "twice"},
		{"every n hours", "one tablet every 6 hours", "every 6 hours"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := ExtractPrescriptionDetails(tt.text, nil)
			require.Contains(t, details, DetailKeyFrequency)
			assert.Equal(t, tt.want, details[DetailKeyFrequency])
		})
	}
}

func TestExtractPrescriptionDetails_Timing(t *testing.T) {
	details := ExtractPrescriptionDetails("take at bedtime with water", nil)
	assert.Equal(t, "bedtime", details[DetailKeyTiming])
}

func TestExtractPrescriptionDetails_ExpiryDate(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"month year", "Exp: 12/2025", "12/2025"},
		{"full date", "expires 01-02-2025", "01-02-2025"},
		{"expiry keyword", "Expiry: 06/26", "06/26"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			details := ExtractPrescriptionDetails(tt.text, nil)
			require.Contains(t, details, DetailKeyExpiryDate)
			assert.Equal(t, tt.want, details[DetailKeyExpiryDate])
		})
	}
}

func TestExtractPrescriptionDetails_EntityDerivedKeys(t *testing.T) {
	entities := []LinkedEntity{
		{Text: "ibuprofen", Label: LabelChemical, CanonicalName: "Ibuprofen", KnowledgeBaseID: "C0020740"},
		{Text: "pain", Label: LabelDisease, CanonicalName: "Pain", KnowledgeBaseID: "C0030193"},
		{Text: "fever", Label: LabelDisease, CanonicalName: "Fever"},
	}

	details := ExtractPrescriptionDetails("no patterns here", entities)

	assert.Equal(t, []string{"Pain", "Fever"}, details[DetailKeyRelatedConditions])
	assert.Equal(t, []string{"C0020740", "C0030193"}, details[DetailKeyCUIIdentifiers])
}

func TestExtractPrescriptionDetails_AbsentKeys(t *testing.T) {
	details := ExtractPrescriptionDetails("nothing matches here", nil)

	require.NotNil(t, details)
	assert.Empty(t, details)
	_, hasFreq := details[DetailKeyFrequency]
	assert.False(t, hasFreq)
}
