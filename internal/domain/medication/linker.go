package medication

import "strings"

// DefaultConfidenceThreshold is the minimum linking score for a knowledge-base
// match to be accepted.
const DefaultConfidenceThreshold = 0.7

// LinkStats counts the entities dropped by LinkEntitiesStats, by reason.
type LinkStats struct {
	// LowConfidence counts entities whose score fell below the threshold.
	LowConfidence int
	// Unlinkable counts entities with neither a canonical name nor span
	// text to resolve one from.
	Unlinkable int
}

// LinkEntities filters raw NER output down to the entities the rest of the
// pipeline may trust. It is a pure, stable filter: surviving entities keep
// their input order, the input slice is never mutated, and nothing is ever
// raised for dropped entries. A dropped entity is indistinguishable from one
// the service never reported.
//
// An entity survives when its score is at or above threshold and it has a
// resolvable canonical name: the service-provided canonical name when
// present, otherwise the span text itself. Entities with neither are dropped.
func LinkEntities(raw []RawEntity, threshold float64) []LinkedEntity {
	linked, _ := LinkEntitiesStats(raw, threshold)
	return linked
}

// LinkEntitiesStats is LinkEntities with per-reason drop counts, for callers
// that report linking outcomes.
func LinkEntitiesStats(raw []RawEntity, threshold float64) ([]LinkedEntity, LinkStats) {
	var stats LinkStats
	linked := make([]LinkedEntity, 0, len(raw))
	for _, e := range raw {
		if e.Score < threshold {
			stats.LowConfidence++
			continue
		}
		canonical := strings.TrimSpace(e.CanonicalName)
		if canonical == "" {
			canonical = strings.TrimSpace(e.Text)
		}
		if canonical == "" {
			stats.Unlinkable++
			continue
		}
		linked = append(linked, LinkedEntity{
			Text:            e.Text,
			Label:           e.Label,
			CanonicalName:   canonical,
			Definition:      e.Definition,
			Aliases:         append([]string(nil), e.Aliases...),
			KnowledgeBaseID: e.KnowledgeBaseID,
			Confidence:      e.Score,
		})
	}
	return linked, stats
}
