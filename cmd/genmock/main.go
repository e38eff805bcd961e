// Command genmock generates a reproducible stream of sensor observations for
// local runs and load tests. The documents go to a JSON fixture file, to the
// Kafka source topic, or both. Expected per-series extrema are computed with
// the domain package and printed so test assertions can be updated.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -stations 4 -hours 24 -interval 10m \
//	  -out data/mock/observations_240426.json \
//	  -brokers localhost:9092 -topic raw-observations
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/jonboulle/clockwork"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

var baseDate = time.Date(2024, time.April, 26, 0, 0, 0, 0, time.UTC)

// sensorDef describes one simulated property measured at every station.
type sensorDef struct {
	procedure string
	property  string
	offering  string
	unit      string
	mean      float64
	amplitude float64
	noise     float64
}

var sensors = []sensorDef{
	{"thermometer", "air_temperature", "offering-air", "degC", 12, 6, 0.4},
	{"hygrometer", "relative_humidity", "offering-air", "%", 70, 15, 2},
	{"rain-gauge", "precipitation", "offering-rain", "mm", 0.3, 0.3, 0.2},
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	stations := flag.Int("stations", 3, "number of simulated stations")
	hours := flag.Int("hours", 24, "hours of data per series")
	interval := flag.Duration("interval", 10*time.Minute, "spacing between observations")
	seed := flag.Uint64("seed", 240426, "random seed")
	out := flag.String("out", "", "output path for the JSON fixture")
	brokers := flag.String("brokers", "", "comma-separated Kafka brokers to publish to")
	topic := flag.String("topic", "raw-observations", "Kafka topic to publish to")
	flag.Parse()

	if *out == "" && *brokers == "" {
		flag.Usage()
		return errors.New("nothing to do: set -out and/or -brokers")
	}
	if *stations <= 0 || *hours <= 0 || *interval <= 0 {
		return errors.New("-stations, -hours and -interval must be positive")
	}

	// Fixed clock for reproducible UpdatedAt timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(baseDate.Add(48 * time.Hour)))
	defer domain.SetClock(nil)

	records, err := generate(*stations, *hours, *interval, *seed)
	if err != nil {
		return err
	}
	log.Printf("generated %d observations across %d series", len(records), *stations*len(sensors))

	if *out != "" {
		if err := writeJSON(*out, records); err != nil {
			return fmt.Errorf("writing fixture: %w", err)
		}
		log.Printf("wrote fixture: %s", *out)
	}
	if *brokers != "" {
		if err := publish(sharedcfg.ParseBrokers(*brokers), *topic, records); err != nil {
			return fmt.Errorf("publishing to %s: %w", *topic, err)
		}
		log.Printf("published %d messages to %s", len(records), *topic)
	}

	printStats(records)
	return nil
}

func generate(stations, hours int, interval time.Duration, seed uint64) ([]domain.ObservationRecord, error) {
	rng := rand.New(rand.NewPCG(seed, seed>>1))
	steps := int(time.Duration(hours) * time.Hour / interval)

	var out []domain.ObservationRecord //nolint:prealloc // grows per station and sensor
	for s := range stations {
		feature := fmt.Sprintf("urn:ogc:object:feature:station-%02d", s+1)
		for _, def := range sensors {
			for i := range steps {
				at := baseDate.Add(time.Duration(i) * interval)
				phase := 2 * math.Pi * float64(at.Hour()*60+at.Minute()) / (24 * 60)
				value := def.mean + def.amplitude*math.Sin(phase) + rng.NormFloat64()*def.noise
				if def.property == "precipitation" {
					value = math.Max(0, value)
				}
				value = math.Round(value*100) / 100

				rec, err := domain.ValidateObservation(domain.ObservationRecord{
					Constellation: domain.Constellation{
						Procedure:          fmt.Sprintf("urn:ogc:object:sensor:%s-%02d", def.procedure, s+1),
						ObservableProperty: "urn:ogc:def:property:" + def.property,
						FeatureOfInterest:  feature,
						Offerings:          []string{def.offering},
						ObservationType:    domain.ObservationTypeMeasurement,
					},
					PhenomenonTime: domain.Instant(at),
					ResultTime:     at.Add(time.Minute),
					Value:          &domain.Single{Payload: domain.Quantity{Value: value, Unit: def.unit}},
				})
				if err != nil {
					return nil, fmt.Errorf("station %d %s step %d: %w", s+1, def.property, i, err)
				}
				out = append(out, rec)
			}
		}
	}

	// Interleave series the way a live feed would deliver them.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PhenomenonTime.Start.Before(out[j].PhenomenonTime.Start)
	})
	return out, nil
}

func publish(brokers []string, topic string, records []domain.ObservationRecord) error {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	defer w.Close()

	const chunk = 500
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for start := 0; start < len(records); start += chunk {
		end := min(start+chunk, len(records))
		msgs := make([]kafkago.Message, 0, end-start)
		for _, rec := range records[start:end] {
			payload, err := json.Marshal(rec)
			if err != nil {
				return fmt.Errorf("marshal %s: %w", rec.ID, err)
			}
			msgs = append(msgs, kafkago.Message{
				Key:   []byte(rec.SeriesID()),
				Value: payload,
				Time:  rec.ResultTime,
			})
		}
		if err := w.WriteMessages(ctx, msgs...); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o600)
}

// printStats replays the stream through SeriesExtrema and prints the
// summary each series should end with.
func printStats(records []domain.ObservationRecord) {
	summaries := map[string]*domain.SeriesExtrema{}
	for _, rec := range records {
		id := rec.SeriesID()
		ext, ok := summaries[id]
		if !ok {
			ext = domain.NewSeriesExtrema(rec.Constellation)
			summaries[id] = ext
		}
		ext.ApplyInsert(rec)
	}

	ids := make([]string, 0, len(summaries))
	for id := range summaries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Println("\n=== Expected series extrema ===")
	fmt.Printf("Total observations: %d\n", len(records))
	fmt.Printf("Series: %d\n", len(ids))
	for _, id := range ids {
		ext := summaries[id]
		fmt.Printf("  %s (%s @ %s)\n", id,
			strings.TrimPrefix(ext.Constellation.ObservableProperty, "urn:ogc:def:property:"),
			strings.TrimPrefix(ext.Constellation.FeatureOfInterest, "urn:ogc:object:feature:"))
		fmt.Printf("    first: %s = %s %s\n", ext.FirstTimestamp.Format(time.RFC3339), formatValue(ext.FirstValue), ext.Unit)
		fmt.Printf("    last:  %s = %s %s\n", ext.LastTimestamp.Format(time.RFC3339), formatValue(ext.LastValue), ext.Unit)
	}
}

func formatValue(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%g", *v)
}
