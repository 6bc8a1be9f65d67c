package pubsubsink

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/illmade-knight/go-kafkabridge/pkg/types"
)

// ConvertPayload turns a record value into a message payload.
//
// A nil value gives an empty payload. When bodyField is set and the value is a
// types.Struct, the payload is the string form of that field, or empty when the
// field is missing or nil. Otherwise the whole value is used.
func ConvertPayload(rec types.IncomingRecord, bodyField string) ([]byte, error) {
	if rec.Value == nil {
		return []byte{}, nil
	}

	if bodyField != "" {
		if st, ok := rec.Value.(types.Struct); ok {
			v, err := st.Get(bodyField)
			if err != nil {
				return nil, &ConversionError{
					Topic:     rec.Topic,
					Partition: rec.Partition,
					Offset:    rec.Offset,
					Err:       fmt.Errorf("reading body field %q: %w", bodyField, err),
				}
			}
			if v == nil {
				return []byte{}, nil
			}
			return []byte(Stringify(v)), nil
		}
	}

	switch v := rec.Value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return []byte(Stringify(v)), nil
	}
}

// Stringify returns the canonical string form of a record value or field.
// Nested maps, slices and structs are rendered as JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case fmt.Stringer:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int8:
		return strconv.FormatInt(int64(t), 10)
	case int16:
		return strconv.FormatInt(int64(t), 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint:
		return strconv.FormatUint(uint64(t), 10)
	case uint8:
		return strconv.FormatUint(uint64(t), 10)
	case uint16:
		return strconv.FormatUint(uint64(t), 10)
	case uint32:
		return strconv.FormatUint(uint64(t), 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any, []any, types.MapStruct:
		b, err := sonic.ConfigStd.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		switch reflect.ValueOf(t).Kind() {
		case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
			b, err := sonic.ConfigStd.Marshal(t)
			if err != nil {
				return fmt.Sprint(t)
			}
			return string(b)
		}
		return fmt.Sprint(t)
	}
}
