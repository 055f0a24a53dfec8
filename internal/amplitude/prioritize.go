// Package amplitude reduces the amplitude records of an arrival to the single
// A5/2 measurement a hypothesis can carry.
package amplitude

import (
	"math"

	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// TypeA5Over2 is the only amplitude type bridged into feature measurements.
const TypeA5Over2 = "A5/2"

const equalityEpsilon = 1e-9

// Selection is the outcome of Prioritize.
type Selection struct {
	Amplitude records.Amplitude
	Found     bool
	// Fallback is set when the highest-ampid rule decided between several
	// eligible candidates because the amplitude/period match was absent or
	// ambiguous.
	Fallback bool
}

// Prioritize picks at most one A5/2 amplitude for the arrival. A unique
// candidate matching the arrival's amplitude and period wins; otherwise the
// eligible candidate with the highest ampid is returned.
func Prioritize(arrival records.Arrival, candidates []records.Amplitude) Selection {
	var eligible []records.Amplitude
	for _, c := range candidates {
		if c.Type == TypeA5Over2 {
			eligible = append(eligible, c)
		}
	}

	switch len(eligible) {
	case 0:
		return Selection{}
	case 1:
		return Selection{Amplitude: eligible[0], Found: true}
	}

	var matched []records.Amplitude
	for _, c := range eligible {
		if fuzzyEquals(arrival.Amplitude, c.Amplitude) && fuzzyEquals(arrival.Period, c.Period) {
			matched = append(matched, c)
		}
	}
	if len(matched) == 1 {
		return Selection{Amplitude: matched[0], Found: true}
	}

	best := eligible[0]
	for _, c := range eligible[1:] {
		if c.ID > best.ID {
			best = c
		}
	}
	return Selection{Amplitude: best, Found: true, Fallback: true}
}

func fuzzyEquals(a, b float64) bool {
	return a == b || math.Abs(a-b) <= equalityEpsilon
}
