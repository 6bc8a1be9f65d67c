package kafkasource

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestKgoLogger_Level(t *testing.T) {
	previous := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(previous) })

	debugLogger := zerolog.New(nil).Level(zerolog.DebugLevel)

	testCases := []struct {
		name     string
		global   zerolog.Level
		logger   zerolog.Logger
		expected kgo.LogLevel
	}{
		{"global stricter than logger", zerolog.WarnLevel, debugLogger, kgo.LogLevelWarn},
		{"logger stricter than global", zerolog.TraceLevel, zerolog.New(nil).Level(zerolog.ErrorLevel), kgo.LogLevelError},
		{"both debug", zerolog.DebugLevel, debugLogger, kgo.LogLevelDebug},
		{"global info", zerolog.InfoLevel, debugLogger, kgo.LogLevelInfo},
		{"global disabled", zerolog.Disabled, debugLogger, kgo.LogLevelNone},
		{"nop logger", zerolog.TraceLevel, zerolog.Nop(), kgo.LogLevelNone},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			zerolog.SetGlobalLevel(tc.global)
			assert.Equal(t, tc.expected, newKgoLogger(tc.logger).Level())
		})
	}
}
