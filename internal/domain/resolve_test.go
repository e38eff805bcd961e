package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveLatest(t *testing.T) {
	records := []ObservationRecord{
		periodRecord("e1", 0, 1),
		periodRecord("e3", 0, 3),
		periodRecord("e2", 0, 2),
	}
	got, ok := Resolve(records, Latest)
	require.True(t, ok)
	assert.Equal(t, "e3", got.ID)
}

func TestResolveFirst(t *testing.T) {
	records := []ObservationRecord{
		periodRecord("b", 4, 40),
		periodRecord("a", 2, 3),
		periodRecord("c", 9, 10),
	}
	got, ok := Resolve(records, First)
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)
}

func TestResolveTiesBrokenByID(t *testing.T) {
	records := []ObservationRecord{
		periodRecord("obs-c", 1, 5),
		periodRecord("obs-a", 1, 5),
		periodRecord("obs-b", 1, 5),
	}
	for _, mode := range []IndeterminateTime{First, Latest} {
		got, ok := Resolve(records, mode)
		require.True(t, ok)
		assert.Equal(t, "obs-a", got.ID, mode.String())

		reversed := []ObservationRecord{records[2], records[1], records[0]}
		got, _ = Resolve(reversed, mode)
		assert.Equal(t, "obs-a", got.ID, "order independent for %s", mode)
	}
}

func TestResolveEmpty(t *testing.T) {
	_, ok := Resolve(nil, First)
	assert.False(t, ok)
}

func TestResolveUnknownModePanics(t *testing.T) {
	assert.Panics(t, func() { Resolve([]ObservationRecord{periodRecord("a", 0, 1)}, IndeterminateTime(9)) })
	assert.Panics(t, func() { Resolve(nil, IndeterminateTime(0)) })
}

func TestParseIndeterminateTime(t *testing.T) {
	tests := []struct {
		in      string
		want    IndeterminateTime
		wantErr bool
	}{
		{in: "first", want: First},
		{in: "LATEST", want: Latest},
		{in: " Latest ", want: Latest},
		{in: "now", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIndeterminateTime(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
