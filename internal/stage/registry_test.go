package stage

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArrivals struct{ name string }

func threeStages(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Stage{
		{Name: "AL1", Account: "al1"},
		{Name: "AL2", Account: "al2"},
		{Name: "AL3", Account: "al3"},
	})
	require.NoError(t, err)
	return r
}

func TestNewRegistryValidation(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	_, err = NewRegistry([]Stage{{Name: "AL1", Account: "a"}, {Name: "AL1", Account: "b"}})
	assert.ErrorContains(t, err, "duplicate stage")

	_, err = NewRegistry([]Stage{{Name: "AL1", Account: "a"}, {Name: "AL2", Account: "a"}})
	assert.ErrorContains(t, err, "duplicate account")

	_, err = NewRegistry([]Stage{{Name: "AL1"}})
	assert.Error(t, err)
}

func TestCurrentAndPrevious(t *testing.T) {
	r := threeStages(t)
	al1 := &fakeArrivals{name: "al1"}
	al2 := &fakeArrivals{name: "al2"}
	require.NoError(t, r.Register("AL1", KindArrival, al1))
	require.NoError(t, r.Register("AL2", KindArrival, al2))

	got, err := CurrentSource[*fakeArrivals](r, "AL2", KindArrival)
	require.NoError(t, err)
	assert.Same(t, al2, got)

	prev, ok := PreviousSource[*fakeArrivals](r, "AL2", KindArrival)
	require.True(t, ok)
	assert.Same(t, al1, prev)

	_, ok = r.Previous("AL1", KindArrival)
	assert.False(t, ok, "first stage has no previous")
	assert.False(t, r.ExistsPrevious("AL1", KindArrival))
	assert.True(t, r.ExistsPrevious("AL2", KindArrival))
}

func TestPreviousMissingKindIsOptional(t *testing.T) {
	r := threeStages(t)
	require.NoError(t, r.Register("AL3", KindArrivalFilter, &fakeArrivals{}))

	assert.False(t, r.ExistsPrevious("AL3", KindArrivalFilter))
	_, ok := OptionalSource[*fakeArrivals](r, "AL2", KindArrivalFilter)
	assert.False(t, ok)
}

func TestCurrentMissingIsConfigurationError(t *testing.T) {
	r := threeStages(t)

	_, err := r.Current("AL2", KindAssoc)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingSource))
	var cfgErr *ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, "AL2", cfgErr.Stage)
	assert.Equal(t, KindAssoc, cfgErr.Kind)

	_, err = r.Current("NOPE", KindAssoc)
	assert.True(t, errors.Is(err, ErrUnknownStage))
}

func TestCurrentSourceTypeMismatch(t *testing.T) {
	r := threeStages(t)
	require.NoError(t, r.Register("AL1", KindArrival, "not a store"))

	_, err := CurrentSource[*fakeArrivals](r, "AL1", KindArrival)
	assert.True(t, errors.Is(err, ErrSourceType))
}

func TestAccountMapping(t *testing.T) {
	r := threeStages(t)

	acct, ok := r.AccountFor("AL2")
	require.True(t, ok)
	assert.Equal(t, "al2", acct)

	s, ok := r.StageForAccount("al3")
	require.True(t, ok)
	assert.Equal(t, "AL3", s.Name)

	_, ok = r.StageForAccount("unknown")
	assert.False(t, ok)

	prev, ok := r.PreviousStage("AL3")
	require.True(t, ok)
	assert.Equal(t, "AL2", prev.Name)
}

func TestRegisterUnknownStage(t *testing.T) {
	r := threeStages(t)
	err := r.Register("AL9", KindArrival, &fakeArrivals{})
	assert.True(t, errors.Is(err, ErrUnknownStage))
	assert.Error(t, r.Register("AL1", KindArrival, nil))
}

func TestStagesReturnsCopyInOrder(t *testing.T) {
	r := threeStages(t)
	got := r.Stages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"AL1", "AL2", "AL3"}, []string{got[0].Name, got[1].Name, got[2].Name})

	got[0].Name = "changed"
	assert.Equal(t, "AL1", r.Stages()[0].Name)
}
