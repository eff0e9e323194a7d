// Package medication holds the domain model and the pure text-structuring
// logic for converting OCR'd medication-label text plus linked medical
// entities into a single structured record.
package medication

import "strings"

// EntityLabel classifies a recognized entity span.
type EntityLabel string

const (
	LabelChemical EntityLabel = "CHEMICAL"
	LabelDisease  EntityLabel = "DISEASE"
	LabelOther    EntityLabel = "OTHER"
)

// ParseLabel maps a wire-format label string onto the supported label set.
// Anything the NER service emits outside CHEMICAL/DISEASE collapses to OTHER.
func ParseLabel(s string) EntityLabel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(LabelChemical):
		return LabelChemical
	case string(LabelDisease):
		return LabelDisease
	default:
		return LabelOther
	}
}

// RawEntity is a single span recognized by the NER service, together with the
// knowledge-base candidate the service attached to it. Produced by the entity
// client and consumed once by the linker; never mutated after creation.
type RawEntity struct {
	// Text is the span exactly as it appeared in the input.
	Text string `json:"text"`

	// Label is the entity class as reported by the service.
	Label EntityLabel `json:"label"`

	// Score is the linking confidence in [0, 1].
	Score float64 `json:"score"`

	// KnowledgeBaseID is the concept identifier (CUI) of the candidate
	// knowledge-base match, empty when the span could not be linked.
	KnowledgeBaseID string `json:"cui,omitempty"`

	// CanonicalName is the preferred name of the linked concept.
	CanonicalName string `json:"canonical_name,omitempty"`

	// Aliases holds alternative names of the linked concept.
	Aliases []string `json:"aliases,omitempty"`

	// Definition is the knowledge-base definition of the concept, when the
	// vocabulary carries one.
	Definition string `json:"definition,omitempty"`
}

// LinkedEntity is a confidence-filtered, canonicalized entity. Instances only
// exist for the duration of one pipeline run. Invariant: Confidence is at or
// above the threshold the linker was called with, and CanonicalName is never
// empty (the linker falls back to the span text).
type LinkedEntity struct {
	Text            string      `json:"text"`
	Label           EntityLabel `json:"label"`
	CanonicalName   string      `json:"canonical_name"`
	Definition      string      `json:"definition,omitempty"`
	Aliases         []string    `json:"aliases,omitempty"`
	KnowledgeBaseID string      `json:"cui,omitempty"`
	Confidence      float64     `json:"confidence"`
}

// Prescription-detail map keys.
const (
	DetailKeyFrequency         = "frequency"
	DetailKeyTiming            = "timing"
	DetailKeyExpiryDate        = "expiry_date"
	DetailKeyRelatedConditions = "related_conditions"
	DetailKeyCUIIdentifiers    = "cui_identifiers"
)

// StructuredMedication is the sole output artifact of the pipeline. Absent
// fields are empty strings / empty maps, never errors: the pipeline always
// produces a record, possibly degraded.
type StructuredMedication struct {
	// Title is the best-effort display name, at most the configured maximum
	// length. Empty when the input text had no tokens at all.
	Title string `json:"title,omitempty"`

	// ActiveIngredients is a comma-joined list of chemical canonical names,
	// de-duplicated case-insensitively in order of first occurrence. Empty
	// string when no chemical entities survived linking.
	ActiveIngredients string `json:"active_ingredients"`

	// Dosage is the first dosage expression found in the text, verbatim.
	Dosage string `json:"dosage,omitempty"`

	// PrescriptionDetails maps detail keys to a string or []string value.
	// Missing categories are absent keys, never nulls.
	PrescriptionDetails map[string]interface{} `json:"prescription_details"`
}
