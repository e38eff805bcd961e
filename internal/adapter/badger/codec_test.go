package badger

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

func TestCodecRoundTrip(t *testing.T) {
	start := time.Date(2024, 4, 26, 12, 0, 0, 0, time.UTC)
	rec := domain.ObservationRecord{
		ID: "obs-1",
		Constellation: domain.Constellation{
			Procedure:          "urn:ogc:object:sensor:rain-gauge",
			ObservableProperty: "urn:ogc:def:property:precipitation",
			FeatureOfInterest:  "urn:ogc:object:feature:station-bonn",
		},
		PhenomenonTime: domain.Instant(start),
		Value:          &domain.Single{Time: domain.Instant(start), Payload: domain.Count(12)},
	}

	for level := 1; level <= 4; level++ {
		c, err := newCodec(level)
		require.NoError(t, err)

		data, err := c.encodeRecord(rec)
		require.NoError(t, err)
		got, err := c.decodeRecord(data)
		require.NoError(t, err)
		if diff := cmp.Diff(rec, got, cmp.AllowUnexported(domain.ParameterHolder{})); diff != "" {
			t.Fatalf("level %d mismatch (-want +got):\n%s", level, diff)
		}
		c.close()
	}
}

func TestCodecRejectsGarbage(t *testing.T) {
	c, err := newCodec(2)
	require.NoError(t, err)
	defer c.close()

	_, err = c.decodeRecord([]byte("plain text"))
	assert.Error(t, err)
}
