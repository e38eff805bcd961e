//go:build integration

package integration_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
)

const kafkaImage = "confluentinc/confluent-local:7.5.0"

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startKafka runs a single-node broker for the lifetime of the test.
func startKafka(ctx context.Context, t *testing.T) string {
	t.Helper()
	container, err := tckafka.Run(ctx, kafkaImage, tckafka.WithClusterID("observation-series-test"))
	require.NoError(t, err, "start kafka container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate kafka container: %v", err)
		}
	})

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	return brokers[0]
}

// createTopic creates a single-partition topic through the cluster controller.
func createTopic(t *testing.T, broker, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)
	ctrl, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	require.NoError(t, err)
	defer ctrl.Close()

	require.NoError(t, ctrl.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	}))
}

// observationDoc builds an ingest document for a thermometer at the given
// station, minute offset and reading.
func observationDoc(station string, minute int, value float64) []byte {
	start := baseDate.Add(time.Duration(minute) * time.Minute)
	return []byte(fmt.Sprintf(`{
		"procedure": "urn:ogc:object:sensor:thermometer-%[1]s",
		"observable_property": "urn:ogc:def:property:air_temperature",
		"feature_of_interest": "urn:ogc:object:feature:%[1]s",
		"offerings": ["offering-air"],
		"observation_type": "http://www.opengis.net/def/observationType/OGC-OM/2.0/OM_Measurement",
		"phenomenon_time": {"start": %[2]q},
		"value": {"kind": "single", "payload": {"type": "quantity", "value": %[3]g, "unit": "degC"}}
	}`, station, start.Format(time.RFC3339), value))
}
