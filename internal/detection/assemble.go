package detection

import "github.com/google/uuid"

// AssembleDetection builds the detection for an arrival from its hypothesis
// references. Duplicate references keep their first position.
func AssembleDetection(id uuid.UUID, arid int64, station, stage string, refs []HypothesisID, built []Hypothesis) Detection {
	seen := make(map[uuid.UUID]bool, len(refs))
	unique := make([]HypothesisID, 0, len(refs))
	for _, r := range refs {
		if seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		unique = append(unique, r)
	}
	return Detection{
		ID:         id,
		Arid:       arid,
		Station:    station,
		Stage:      stage,
		Hypotheses: unique,
		Built:      built,
	}
}
