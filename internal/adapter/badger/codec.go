package badger

import (
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/couchcryptid/observation-series-service/internal/domain"
)

// codec stores records as zstd-compressed JSON.
type codec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// newCodec maps level 1-4 onto the zstd speed presets.
func newCodec(level int) (*codec, error) {
	encLevel := zstd.SpeedDefault
	switch level {
	case 1:
		encLevel = zstd.SpeedFastest
	case 2:
		encLevel = zstd.SpeedDefault
	case 3:
		encLevel = zstd.SpeedBetterCompression
	case 4:
		encLevel = zstd.SpeedBestCompression
	default:
		return nil, fmt.Errorf("compression level %d out of range 1-4", level)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(encLevel))
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	return &codec{encoder: encoder, decoder: decoder}, nil
}

func (c *codec) encodeRecord(rec domain.ObservationRecord) ([]byte, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return c.encoder.EncodeAll(data, nil), nil
}

func (c *codec) decodeRecord(b []byte) (domain.ObservationRecord, error) {
	data, err := c.decoder.DecodeAll(b, nil)
	if err != nil {
		return domain.ObservationRecord{}, fmt.Errorf("decompress record: %w", err)
	}
	var rec domain.ObservationRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return domain.ObservationRecord{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

func (c *codec) close() {
	_ = c.encoder.Close()
	c.decoder.Close()
}
