package kafkasource

import (
	"github.com/bytedance/sonic"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// jsonAPI keeps numbers as json.Number so large integers survive unchanged.
var jsonAPI = sonic.Config{UseNumber: true}.Froze()

// Decoder turns fetched Kafka records into IncomingRecords.
type Decoder struct {
	valueFormat string
	keyFormat   string
	logger      zerolog.Logger
}

// NewDecoder creates a decoder for the given value and key formats.
func NewDecoder(valueFormat, keyFormat string, logger zerolog.Logger) (*Decoder, error) {
	if err := checkFormat(valueFormat, FormatBytes, FormatString, FormatJSON); err != nil {
		return nil, err
	}
	if err := checkFormat(keyFormat, FormatBytes, FormatString); err != nil {
		return nil, err
	}
	return &Decoder{
		valueFormat: valueFormat,
		keyFormat:   keyFormat,
		logger:      logger.With().Str("component", "Decoder").Logger(),
	}, nil
}

// Decode converts one record. A JSON value that cannot be parsed is passed on as raw bytes.
func (d *Decoder) Decode(r *kgo.Record) types.IncomingRecord {
	rec := types.IncomingRecord{
		Topic:     r.Topic,
		Partition: r.Partition,
		Offset:    r.Offset,
		Key:       d.decodeKey(r.Key),
		Value:     d.decodeValue(r),
	}
	if !r.Timestamp.IsZero() {
		rec.Timestamp = types.Millis(r.Timestamp.UnixMilli())
	}
	return rec
}

// DecodeAll converts a polled batch, preserving order.
func (d *Decoder) DecodeAll(records []*kgo.Record) []types.IncomingRecord {
	out := make([]types.IncomingRecord, len(records))
	for i, r := range records {
		out[i] = d.Decode(r)
	}
	return out
}

func (d *Decoder) decodeKey(key []byte) any {
	if key == nil {
		return nil
	}
	if d.keyFormat == FormatBytes {
		return key
	}
	return string(key)
}

func (d *Decoder) decodeValue(r *kgo.Record) any {
	if r.Value == nil {
		return nil
	}
	switch d.valueFormat {
	case FormatString:
		return string(r.Value)
	case FormatJSON:
		var v any
		if err := jsonAPI.Unmarshal(r.Value, &v); err != nil {
			d.logger.Warn().Err(err).
				Str("topic", r.Topic).
				Int32("partition", r.Partition).
				Int64("offset", r.Offset).
				Msg("Record value is not valid JSON, passing raw bytes")
			return r.Value
		}
		if m, ok := v.(map[string]any); ok {
			return types.MapStruct(m)
		}
		return v
	default:
		return r.Value
	}
}
