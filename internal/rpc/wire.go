package rpc

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/lineage"
)

// #region requests
type DetectionsByIDRequest struct {
	DetectionIDs []string `json:"detection_ids"`
	Stage        string   `json:"stage"`
}

type DetectionsByStationRequest struct {
	Stations []string  `json:"stations"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Stage    string    `json:"stage"`
	Excluded []string  `json:"excluded,omitempty"`
}

type HypothesisIDsRequest struct {
	HypothesisIDs []string `json:"hypothesis_ids"`
}

// #endregion requests

// #region responses
type DetectionsResponse struct {
	Detections []Detection `json:"detections"`
}

type HypothesesResponse struct {
	Hypotheses []Hypothesis `json:"hypotheses"`
}

type FilterRecordsResponse struct {
	Records []FilterRecord `json:"records"`
	Partial bool           `json:"partial"`
}

type Detection struct {
	ID         string          `json:"id"`
	Arid       int64           `json:"arid"`
	Station    string          `json:"station"`
	Stage      string          `json:"stage"`
	Hypotheses []HypothesisRef `json:"hypotheses"`
	Built      []Hypothesis    `json:"built,omitempty"`
}

type HypothesisRef struct {
	DetectionID string `json:"detection_id"`
	ID          string `json:"id"`
}

type Hypothesis struct {
	ID              string     `json:"id"`
	DetectionID     string     `json:"detection_id"`
	Key             string     `json:"key"`
	Stage           string     `json:"stage"`
	ParentID        string     `json:"parent_id,omitempty"`
	ParentKey       string     `json:"parent_key,omitempty"`
	Station         string     `json:"station"`
	Phase           string     `json:"phase"`
	ArrivalTime     time.Time  `json:"arrival_time"`
	Orid            *int64     `json:"orid,omitempty"`
	Channel         string     `json:"channel"`
	AnalysisChannel string     `json:"analysis_channel"`
	AnalysisStart   time.Time  `json:"analysis_start"`
	AnalysisEnd     time.Time  `json:"analysis_end"`
	FilterID        *int64     `json:"filter_id,omitempty"`
	FilterUsage     string     `json:"filter_usage"`
	Amplitude       *Amplitude `json:"amplitude,omitempty"`
}

type Amplitude struct {
	Ampid     int64   `json:"ampid"`
	Type      string  `json:"type"`
	Amplitude float64 `json:"amplitude"`
	Period    float64 `json:"period"`
	Channel   string  `json:"channel,omitempty"`
}

type FilterRecord struct {
	HypothesisID string           `json:"hypothesis_id"`
	Usages       map[string]int64 `json:"usages"`
}

// #endregion responses

// #region mapping
func toDetections(in []detection.Detection) DetectionsResponse {
	out := DetectionsResponse{Detections: make([]Detection, 0, len(in))}
	for _, d := range in {
		w := Detection{ID: d.ID.String(), Arid: d.Arid, Station: d.Station, Stage: d.Stage}
		for _, r := range d.Hypotheses {
			w.Hypotheses = append(w.Hypotheses, HypothesisRef{DetectionID: r.DetectionID.String(), ID: r.ID.String()})
		}
		for _, h := range d.Built {
			w.Built = append(w.Built, toHypothesis(h))
		}
		out.Detections = append(out.Detections, w)
	}
	return out
}

func toHypothesis(h detection.Hypothesis) Hypothesis {
	w := Hypothesis{
		ID:              h.ID.ID.String(),
		DetectionID:     h.ID.DetectionID.String(),
		Key:             h.Key.String(),
		Stage:           h.Stage,
		Station:         h.Station,
		Phase:           h.Phase,
		ArrivalTime:     h.ArrivalTime,
		Orid:            h.Orid,
		Channel:         h.Channel.Name,
		AnalysisChannel: h.Analysis.Channel.Name,
		AnalysisStart:   h.Analysis.Start,
		AnalysisEnd:     h.Analysis.End,
		FilterUsage:     string(h.Analysis.Usage),
	}
	if h.Parent != nil {
		w.ParentID = h.Parent.ID.String()
	}
	if h.ParentKey != nil {
		w.ParentKey = h.ParentKey.String()
	}
	if h.Analysis.Filter != nil {
		id := h.Analysis.Filter.ID
		w.FilterID = &id
	}
	if m := h.Amplitude; m != nil {
		w.Amplitude = &Amplitude{Ampid: m.Record.ID, Type: m.Record.Type, Amplitude: m.Record.Amplitude, Period: m.Record.Period}
		if m.Channel != nil {
			w.Amplitude.Channel = m.Channel.Name
		}
	}
	return w
}

func toFilterRecords(in []lineage.FilterRecordIDsByUsage, partial bool) FilterRecordsResponse {
	out := FilterRecordsResponse{Records: make([]FilterRecord, 0, len(in)), Partial: partial}
	for _, r := range in {
		usages := make(map[string]int64, len(r.Usages))
		for u, id := range r.Usages {
			usages[string(u)] = id
		}
		out.Records = append(out.Records, FilterRecord{HypothesisID: r.HypothesisID.String(), Usages: usages})
	}
	return out
}

func parseIDs(in []string) ([]uuid.UUID, error) {
	out := make([]uuid.UUID, 0, len(in))
	for _, s := range in {
		id, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("id %q: %w", s, err)
		}
		out = append(out, id)
	}
	return out, nil
}

func idStrings(in []uuid.UUID) []string {
	out := make([]string, len(in))
	for i, id := range in {
		out[i] = id.String()
	}
	return out
}

// #endregion mapping

// #region struct-codec
// encode carries v over the wire as a google.protobuf.Struct.
func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal %T: %w", v, err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(raw, s); err != nil {
		return nil, fmt.Errorf("struct from %T: %w", v, err)
	}
	return s, nil
}

func decode(s *structpb.Struct, v any) error {
	raw, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal struct: %w", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("unmarshal %T: %w", v, err)
	}
	return nil
}

// #endregion struct-codec
