// Package detection holds the caller-facing signal detection objects and
// the converter that turns an assembled bundle into a hypothesis.
package detection

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/danielpatrickdp/lineage-bridge/internal/filterid"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
	"github.com/danielpatrickdp/lineage-bridge/internal/waveform"
)

// #region keys
// Source names the record a hypothesis was built from.
type Source string

const (
	SourceArrival Source = "arrival"
	SourceAssoc   Source = "assoc"
)

// HypothesisKey is the legacy identity of a hypothesis: the account of the
// stage it was built at, the arid and, for association hypotheses, the orid.
type HypothesisKey struct {
	Account string
	Arid    int64
	Orid    int64
	Source  Source
}

// ArrivalKey is the key of the hypothesis built from an arrival.
func ArrivalKey(account string, arid int64) HypothesisKey {
	return HypothesisKey{Account: account, Arid: arid, Source: SourceArrival}
}

// AssocKey is the key of the hypothesis built from an association.
func AssocKey(account string, key records.AssocKey) HypothesisKey {
	return HypothesisKey{Account: account, Arid: key.Arid, Orid: key.Orid, Source: SourceAssoc}
}

func (k HypothesisKey) String() string {
	if k.Source == SourceAssoc {
		return fmt.Sprintf("%s/%d/%d", k.Account, k.Arid, k.Orid)
	}
	return fmt.Sprintf("%s/%d", k.Account, k.Arid)
}

// HypothesisID is the opaque identity of a hypothesis within its detection.
type HypothesisID struct {
	DetectionID uuid.UUID
	ID          uuid.UUID
}

func (id HypothesisID) String() string {
	return id.ID.String()
}

// #endregion keys

// #region hypothesis
// AnalysisWaveform is the unfiltered channel segment a hypothesis was
// analysed on, with the filter that was in effect.
type AnalysisWaveform struct {
	Channel waveform.Channel
	Start   time.Time
	End     time.Time
	Filter  *records.FilterDefinition
	Usage   filterid.Usage
}

// AmplitudeMeasurement is the single A5/2 amplitude attached to a
// hypothesis.
type AmplitudeMeasurement struct {
	Record   records.Amplitude
	Channel  *waveform.Channel
	Analysis *AnalysisWaveform
}

// Hypothesis is one versioned interpretation of a detection at one stage.
// It is never modified after conversion.
type Hypothesis struct {
	ID        HypothesisID
	Key       HypothesisKey
	Stage     string
	Parent    *HypothesisID
	ParentKey *HypothesisKey

	Station     string
	Phase       string
	ArrivalTime time.Time
	Orid        *int64

	Channel   waveform.Channel
	Analysis  AnalysisWaveform
	Amplitude *AmplitudeMeasurement
}

// #endregion hypothesis

// #region detection
// Detection is a signal detection and the hypotheses that make up its
// history as seen from one stage. Hypotheses holds references, oldest stage
// first; Built holds the hypotheses that were constructed for that stage.
type Detection struct {
	ID         uuid.UUID
	Arid       int64
	Station    string
	Stage      string
	Hypotheses []HypothesisID
	Built      []Hypothesis
}

// #endregion detection
