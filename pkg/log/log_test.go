package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

// Helper loggers must support chaining level methods directly off the
// constructor call.
func TestHelperLoggersChainDirectly(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: DebugLevel, JSONOutput: true, Output: &buf})

	WithComponent("cache").Info().Msg("ready")
	WithRequestID("req-1").Warn().Msg("slow")
	WithWorkerID("worker-2").Error().Msg("exited")
	WithModelID("m-3").Debug().Msg("loaded")
	WithSessionID("s-4").Info().Msg("rotated")

	out := buf.String()
	assert.Contains(t, out, `"component":"cache"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
	assert.Contains(t, out, `"worker_id":"worker-2"`)
	assert.Contains(t, out, `"model_id":"m-3"`)
	assert.Contains(t, out, `"session_id":"s-4"`)
}

func TestChildLoggersDoNotShareFields(t *testing.T) {
	var buf bytes.Buffer
	Init(Config{Level: InfoLevel, JSONOutput: true, Output: &buf})

	a := WithComponent("storage")
	b := WithComponent("health")
	a.Info().Msg("one")
	b.Info().Msg("two")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), `"component":"storage"`)
	assert.Contains(t, string(lines[1]), `"component":"health"`)
}
