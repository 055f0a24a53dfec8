package provenance

import "time"

// #region entry
// Entry is a single row in the lineage_log table: one emitted hypothesis
// and the decision that produced it.
type Entry struct {
	HypothesisID string
	DetectionID  string
	ParentID     string
	Stage        string
	Account      string
	Arid         int64
	Orid         int64  // ignored unless Source is SourceAssoc
	Source       string // SourceArrival | SourceAssoc
	Decision     string
	ParentRule   string
	InputsJSON   string
	CreatedAt    time.Time
}

// Entry sources.
const (
	SourceArrival = "arrival"
	SourceAssoc   = "assoc"
)

// #endregion entry

// #region decision-inputs
// DecisionInputs captures what the resolver knew when it placed a
// hypothesis in the lineage. Serialized into lineage_log.inputs_json.
type DecisionInputs struct {
	HasPreviousStage   bool   `json:"has_previous_stage"`
	HasCurrentAssoc    bool   `json:"has_current_assoc"`
	HasPreviousArrival bool   `json:"has_previous_arrival"`
	HasPreviousAssoc   bool   `json:"has_previous_assoc,omitempty"`
	Phase              string `json:"phase"`
	PreviousPhase      string `json:"previous_phase,omitempty"`

	Beamed      bool   `json:"beamed"`
	Wfid        int64  `json:"wfid"`
	Channel     string `json:"channel"`
	FilterUsage string `json:"filter_usage,omitempty"`
	Ampid       int64  `json:"ampid,omitempty"`
	AmpFallback bool   `json:"amp_fallback,omitempty"`
}

// #endregion decision-inputs
