package hermes

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/engine"
)

// TestStopIsSafeAgainstLateEmits ensures broker callbacks that outlive Stop
// cannot panic on the closed channels.
func TestStopIsSafeAgainstLateEmits(t *testing.T) {
	t.Parallel()

	c := NewClient(config.MQTTConfig{Broker: "mqtt://localhost:1883", ClientID: "test"})

	require.NoError(t, c.Stop(context.Background()))

	// A straggling delivery after shutdown is dropped, not a panic.
	c.emit(engine.HotwordDetected{SiteID: "bedroom"})
	c.emitIntent(Intent{Name: IntentGetAlarms})

	_, ok := <-c.Events()
	require.False(t, ok)

	_, ok = <-c.Intents()
	require.False(t, ok)

	// Stop is idempotent.
	require.NoError(t, c.Stop(context.Background()))
}
