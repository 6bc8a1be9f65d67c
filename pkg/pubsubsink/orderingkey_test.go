package pubsubsink

import (
	"errors"
	"testing"

	"github.com/illmade-knight/go-kafkabridge/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResolveOrderingKey(t *testing.T) {
	logger := zerolog.Nop()

	testCases := []struct {
		name     string
		record   types.IncomingRecord
		source   string
		expected string
	}{
		{"empty source", types.IncomingRecord{Key: "k"}, "", ""},
		{"key source", types.IncomingRecord{Key: "user-1"}, "key", "user-1"},
		{"key source is case insensitive", types.IncomingRecord{Key: "user-1"}, "KEY", "user-1"},
		{"key source with bytes key", types.IncomingRecord{Key: []byte("user-2")}, "key", "user-2"},
		{"key source with nil key", types.IncomingRecord{}, "key", ""},
		{"partition source", types.IncomingRecord{Partition: 7, Key: "ignored"}, "partition", "7"},
		{"partition source without content", types.IncomingRecord{Partition: 0}, "partition", "0"},
		{"field source", types.IncomingRecord{Value: types.MapStruct{"customer": "c-9"}}, "customer", "c-9"},
		{"numeric field source", types.IncomingRecord{Value: types.MapStruct{"customer": int64(12)}}, "customer", "12"},
		{"absent field", types.IncomingRecord{Value: types.MapStruct{"other": "x"}}, "customer", ""},
		{"nil field", types.IncomingRecord{Value: types.MapStruct{"customer": nil}}, "customer", ""},
		{"field source on non-struct value", types.IncomingRecord{Value: "plain"}, "customer", ""},
		{"binary key is base64 encoded", types.IncomingRecord{Key: []byte{0xff, 0xfe}}, "key", "//4="},
		{"invalid utf-8 string key is base64 encoded", types.IncomingRecord{Key: string([]byte{0xff, 0xfe, 0x01})}, "key", "//4B"},
		{"binary field is base64 encoded", types.IncomingRecord{Value: types.MapStruct{"customer": []byte{0x80}}}, "customer", "gA=="},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ResolveOrderingKey(tc.record, tc.source, logger))
		})
	}
}

func TestResolveOrderingKey_LookupFailure(t *testing.T) {
	rec := types.IncomingRecord{Value: failingStruct{err: errors.New("schema has no field")}}
	assert.NotPanics(t, func() {
		assert.Equal(t, "", ResolveOrderingKey(rec, "customer", zerolog.Nop()))
	})
}
