package slug

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memLookup struct {
	owners map[string]int64
	probes int
	err    error
}

func (m *memLookup) FindSlugOwner(_ context.Context, slug string) (int64, bool, error) {
	m.probes++
	if m.err != nil {
		return 0, false, m.err
	}
	owner, ok := m.owners[slug]
	return owner, ok, nil
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"The Haunting", "the-haunting"},
		{"  The   Haunting!!  ", "the-haunting"},
		{"Hill's End -- Part 2", "hills-end-part-2"},
		{"already-a-slug", "already-a-slug"},
		{"---trim---", "trim"},
		{"Ünïcödé only", "ncd-only"},
		{"!!!", ""},
		{strings.Repeat("a", 60), strings.Repeat("a", 50)},
		{strings.Repeat("a", 49) + " b", strings.Repeat("a", 49)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.input), tt.input)
	}
}

func TestAllocate_FreeSlug(t *testing.T) {
	lookup := &memLookup{owners: map[string]int64{}}
	a := NewAllocator(lookup, 0)

	got, err := a.Allocate(context.Background(), "The Haunting", 42)
	require.NoError(t, err)
	assert.Equal(t, "the-haunting", got)
	assert.Equal(t, 1, lookup.probes)
}

func TestAllocate_ReusesOwnSlug(t *testing.T) {
	lookup := &memLookup{owners: map[string]int64{"the-haunting": 42}}
	a := NewAllocator(lookup, 0)

	got, err := a.Allocate(context.Background(), "The  HAUNTING", 42)
	require.NoError(t, err)
	assert.Equal(t, "the-haunting", got)
}

func TestAllocate_AppendsSuffixOnCollision(t *testing.T) {
	lookup := &memLookup{owners: map[string]int64{
		"the-haunting":   7,
		"the-haunting-1": 8,
		"the-haunting-2": 0,
	}}
	a := NewAllocator(lookup, 0)

	got, err := a.Allocate(context.Background(), "the-haunting", 42)
	require.NoError(t, err)
	assert.Equal(t, "the-haunting-3", got)
	assert.Equal(t, 4, lookup.probes)
}

func TestAllocate_ReusesOwnSuffixedSlug(t *testing.T) {
	lookup := &memLookup{owners: map[string]int64{
		"the-haunting":   7,
		"the-haunting-1": 42,
	}}
	a := NewAllocator(lookup, 0)

	got, err := a.Allocate(context.Background(), "the-haunting", 42)
	require.NoError(t, err)
	assert.Equal(t, "the-haunting-1", got)
}

func TestAllocate_EmptyBaseFallsBackToSourceID(t *testing.T) {
	a := NewAllocator(&memLookup{owners: map[string]int64{}}, 0)

	got, err := a.Allocate(context.Background(), "???", 99)
	require.NoError(t, err)
	assert.Equal(t, "post-99", got)
}

func TestAllocate_ProbeLimit(t *testing.T) {
	owners := map[string]int64{"x": 1}
	for i := 1; i <= 3; i++ {
		owners[fmt.Sprintf("x-%d", i)] = int64(i + 1)
	}
	a := NewAllocator(&memLookup{owners: owners}, 3)

	_, err := a.Allocate(context.Background(), "x", 42)
	assert.Error(t, err)
}

func TestAllocate_LookupError(t *testing.T) {
	a := NewAllocator(&memLookup{err: errors.New("connection reset")}, 0)

	_, err := a.Allocate(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
}
