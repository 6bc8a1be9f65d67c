package pubsubsink

import (
	"encoding/base64"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
)

// ResolveOrderingKey derives the ordering key for a record.
//
// source "key" uses the record key, "partition" the partition number, and any other
// non-empty value names a field of a structured value. An empty result means the
// message is published without ordering. Lookup failures are logged, never returned.
// Keys that are not valid UTF-8 are base64 encoded.
func ResolveOrderingKey(rec types.IncomingRecord, source string, logger zerolog.Logger) string {
	if source == "" {
		return ""
	}

	switch strings.ToLower(source) {
	case OrderingSourceKey:
		if rec.Key == nil {
			return ""
		}
		return orderingKeyString(rec.Key)
	case OrderingSourcePartition:
		return strconv.FormatInt(int64(rec.Partition), 10)
	}

	st, ok := rec.Value.(types.Struct)
	if !ok {
		return ""
	}
	v, err := st.Get(source)
	if err != nil {
		logger.Warn().Err(err).
			Str("field", source).
			Str("topic", rec.Topic).
			Int32("partition", rec.Partition).
			Int64("offset", rec.Offset).
			Msg("Could not extract ordering key from field")
		return ""
	}
	if v == nil {
		return ""
	}
	return orderingKeyString(v)
}

// orderingKeyString renders v as an ordering key. Pub/Sub ordering keys must be valid
// UTF-8, so keys that are not are replaced by the standard base64 encoding of their bytes.
func orderingKeyString(v any) string {
	if b, ok := v.([]byte); ok {
		if utf8.Valid(b) {
			return string(b)
		}
		return base64.StdEncoding.EncodeToString(b)
	}
	s := Stringify(v)
	if utf8.ValidString(s) {
		return s
	}
	return base64.StdEncoding.EncodeToString([]byte(s))
}
