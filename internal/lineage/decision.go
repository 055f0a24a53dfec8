package lineage

import (
	"fmt"

	"github.com/danielpatrickdp/lineage-bridge/internal/detection"
	"github.com/danielpatrickdp/lineage-bridge/internal/records"
)

// #region inputs
// Counterpart is what the resolver knows about an arid at the previous
// stage.
type Counterpart struct {
	HasPreviousStage bool
	// Arrival is the previous-stage arrival with the same arid, if any.
	Arrival *records.Arrival
}

// PhaseChanged reports whether the previous arrival exists with a phase
// other than phase.
func (c Counterpart) PhaseChanged(phase string) bool {
	return c.Arrival != nil && c.Arrival.Phase != phase
}

// #endregion inputs

// #region arrival-decision
// ArrivalDecision says whether a current-stage arrival gets a hypothesis of
// its own, separate from its association hypotheses.
type ArrivalDecision int

const (
	// BuildFromArrival: first stage, unassociated, new, or re-phased.
	BuildFromArrival ArrivalDecision = iota + 1
	// AssociationsOnly: the arrival is carried by its association
	// hypotheses and its previous-stage arrival hypothesis.
	AssociationsOnly
)

func (d ArrivalDecision) String() string {
	switch d {
	case BuildFromArrival:
		return "build_from_arrival"
	case AssociationsOnly:
		return "associations_only"
	default:
		return fmt.Sprintf("ArrivalDecision(%d)", int(d))
	}
}

// DecideArrival applies the arrival rule to a current-stage arrival.
func DecideArrival(a records.Arrival, hasCurrentAssoc bool, prev Counterpart) ArrivalDecision {
	switch {
	case !prev.HasPreviousStage,
		!hasCurrentAssoc,
		prev.Arrival == nil,
		prev.PhaseChanged(a.Phase):
		return BuildFromArrival
	default:
		return AssociationsOnly
	}
}

// ArrivalParent is the parent of an arrival hypothesis: the previous-stage
// arrival hypothesis with the same arid, whatever its phase, or none.
func ArrivalParent(arid int64, prev Counterpart, previousAccount string) *detection.HypothesisKey {
	if !prev.HasPreviousStage || prev.Arrival == nil {
		return nil
	}
	k := detection.ArrivalKey(previousAccount, arid)
	return &k
}

// #endregion arrival-decision

// #region parent-rule
// ParentRule is the rule that placed an association hypothesis in the
// lineage.
type ParentRule int

const (
	// RuleFirstStage: same-stage edge to the arrival hypothesis.
	RuleFirstStage ParentRule = iota + 1
	// RulePreviousAssoc: the same association existed at the previous stage.
	RulePreviousAssoc
	// RuleRederived: the arrival is new or re-phased at this stage; same-stage
	// edge to its arrival hypothesis.
	RuleRederived
	// RuleInherited: edge to the previous-stage arrival hypothesis, or a root
	// when there is none.
	RuleInherited
)

func (r ParentRule) String() string {
	switch r {
	case RuleFirstStage:
		return "first_stage"
	case RulePreviousAssoc:
		return "previous_assoc"
	case RuleRederived:
		return "rederived"
	case RuleInherited:
		return "inherited"
	default:
		return fmt.Sprintf("ParentRule(%d)", int(r))
	}
}

// AssocCandidate is an association at the current stage together with what
// is known about its arrival.
type AssocCandidate struct {
	Assoc            records.Assoc
	CurrentArrival   *records.Arrival
	HasPreviousAssoc bool
	Previous         Counterpart
}

// ChooseParentRule picks the first rule that applies, in priority order.
func ChooseParentRule(c AssocCandidate) ParentRule {
	switch {
	case !c.Previous.HasPreviousStage:
		return RuleFirstStage
	case c.HasPreviousAssoc:
		return RulePreviousAssoc
	case c.CurrentArrival != nil && (c.Previous.Arrival == nil || c.Previous.PhaseChanged(c.CurrentArrival.Phase)):
		return RuleRederived
	default:
		return RuleInherited
	}
}

// AssocParent maps a rule onto the key of the parent hypothesis.
func AssocParent(rule ParentRule, c AssocCandidate, account, previousAccount string) *detection.HypothesisKey {
	arid := c.Assoc.Key.Arid
	var k detection.HypothesisKey
	switch rule {
	case RuleFirstStage, RuleRederived:
		k = detection.ArrivalKey(account, arid)
	case RulePreviousAssoc:
		k = detection.AssocKey(previousAccount, c.Assoc.Key)
	case RuleInherited:
		if c.Previous.Arrival == nil {
			return nil
		}
		k = detection.ArrivalKey(previousAccount, arid)
	default:
		panic(fmt.Sprintf("lineage: unhandled parent rule %v", rule))
	}
	return &k
}

// #endregion parent-rule
