package stage

import (
	"errors"
	"fmt"
)

// #region kinds
// Kind tags the record type a source serves.
type Kind string

const (
	KindArrival         Kind = "arrival"
	KindAssoc           Kind = "assoc"
	KindAmplitude       Kind = "amplitude"
	KindArrivalFilter   Kind = "arrival_filter"
	KindAmplitudeFilter Kind = "amplitude_filter"
)

// #endregion kinds

// #region errors
var (
	ErrUnknownStage  = errors.New("unknown stage")
	ErrMissingSource = errors.New("missing current-stage source")
	ErrSourceType    = errors.New("source has unexpected type")
)

// ConfigurationError reports a registry lookup that can never succeed for
// this run's stage definition. It is not retried.
type ConfigurationError struct {
	Stage string
	Kind  Kind
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("stage %q: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("stage %q kind %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// #endregion errors

// #region stage
// Stage is one step of the ordered review pipeline.
type Stage struct {
	Name    string
	Account string
}

// #endregion stage

// #region registry
// Registry holds the ordered stages and the record sources registered for
// each of them. The previous-stage source for a kind is the source
// registered for the same kind on the immediately preceding stage.
type Registry struct {
	order     []Stage
	index     map[string]int
	byAccount map[string]int
	sources   []map[Kind]any
}

// NewRegistry validates the stage order. Names and accounts must be unique
// and non-empty.
func NewRegistry(stages []Stage) (*Registry, error) {
	if len(stages) == 0 {
		return nil, errors.New("stage registry: no stages")
	}
	r := &Registry{
		order:     append([]Stage(nil), stages...),
		index:     make(map[string]int, len(stages)),
		byAccount: make(map[string]int, len(stages)),
		sources:   make([]map[Kind]any, len(stages)),
	}
	for i, s := range stages {
		if s.Name == "" || s.Account == "" {
			return nil, fmt.Errorf("stage registry: stage %d needs a name and an account", i)
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("stage registry: duplicate stage %q", s.Name)
		}
		if _, dup := r.byAccount[s.Account]; dup {
			return nil, fmt.Errorf("stage registry: duplicate account %q", s.Account)
		}
		r.index[s.Name] = i
		r.byAccount[s.Account] = i
		r.sources[i] = make(map[Kind]any)
	}
	return r, nil
}

// Register installs the source serving kind for the named stage.
func (r *Registry) Register(stageName string, kind Kind, source any) error {
	i, ok := r.index[stageName]
	if !ok {
		return &ConfigurationError{Stage: stageName, Kind: kind, Err: ErrUnknownStage}
	}
	if source == nil {
		return fmt.Errorf("register %s for stage %q: nil source", kind, stageName)
	}
	r.sources[i][kind] = source
	return nil
}

// Stages returns the stage order.
func (r *Registry) Stages() []Stage {
	return append([]Stage(nil), r.order...)
}

// Stage returns the named stage.
func (r *Registry) Stage(stageName string) (Stage, error) {
	i, ok := r.index[stageName]
	if !ok {
		return Stage{}, &ConfigurationError{Stage: stageName, Err: ErrUnknownStage}
	}
	return r.order[i], nil
}

// PreviousStage returns the stage immediately before the named one. The
// first stage has none.
func (r *Registry) PreviousStage(stageName string) (Stage, bool) {
	i, ok := r.index[stageName]
	if !ok || i == 0 {
		return Stage{}, false
	}
	return r.order[i-1], true
}

// AccountFor maps a stage to its external account id.
func (r *Registry) AccountFor(stageName string) (string, bool) {
	i, ok := r.index[stageName]
	if !ok {
		return "", false
	}
	return r.order[i].Account, true
}

// StageForAccount maps an external account id back to its stage.
func (r *Registry) StageForAccount(account string) (Stage, bool) {
	i, ok := r.byAccount[account]
	if !ok {
		return Stage{}, false
	}
	return r.order[i], true
}

// Current returns the mandatory source of kind for the stage.
func (r *Registry) Current(stageName string, kind Kind) (any, error) {
	i, ok := r.index[stageName]
	if !ok {
		return nil, &ConfigurationError{Stage: stageName, Kind: kind, Err: ErrUnknownStage}
	}
	src, ok := r.sources[i][kind]
	if !ok {
		return nil, &ConfigurationError{Stage: stageName, Kind: kind, Err: ErrMissingSource}
	}
	return src, nil
}

// LookupCurrent returns the stage's own source of kind when one exists.
// Used for kinds that a stage may legitimately lack.
func (r *Registry) LookupCurrent(stageName string, kind Kind) (any, bool) {
	i, ok := r.index[stageName]
	if !ok {
		return nil, false
	}
	src, ok := r.sources[i][kind]
	return src, ok
}

// Previous returns the preceding stage's source of kind, if both exist.
func (r *Registry) Previous(stageName string, kind Kind) (any, bool) {
	prev, ok := r.PreviousStage(stageName)
	if !ok {
		return nil, false
	}
	return r.LookupCurrent(prev.Name, kind)
}

// ExistsPrevious reports whether Previous would return a source.
func (r *Registry) ExistsPrevious(stageName string, kind Kind) bool {
	_, ok := r.Previous(stageName, kind)
	return ok
}

// #endregion registry

// #region typed-lookups
// CurrentSource is Current with the result asserted to T.
func CurrentSource[T any](r *Registry, stageName string, kind Kind) (T, error) {
	var zero T
	src, err := r.Current(stageName, kind)
	if err != nil {
		return zero, err
	}
	typed, ok := src.(T)
	if !ok {
		return zero, &ConfigurationError{Stage: stageName, Kind: kind, Err: ErrSourceType}
	}
	return typed, nil
}

// OptionalSource is LookupCurrent with the result asserted to T.
func OptionalSource[T any](r *Registry, stageName string, kind Kind) (T, bool) {
	var zero T
	src, ok := r.LookupCurrent(stageName, kind)
	if !ok {
		return zero, false
	}
	typed, ok := src.(T)
	return typed, ok
}

// PreviousSource is Previous with the result asserted to T.
func PreviousSource[T any](r *Registry, stageName string, kind Kind) (T, bool) {
	var zero T
	src, ok := r.Previous(stageName, kind)
	if !ok {
		return zero, false
	}
	typed, ok := src.(T)
	return typed, ok
}

// #endregion typed-lookups
