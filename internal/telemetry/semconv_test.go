package telemetry

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnvironmentDefaultsAndNormalises(t *testing.T) {
	t.Cleanup(func() { SetEnvironment("") })

	SetEnvironment("")
	require.Equal(t, "development", Environment())

	SetEnvironment("  STAGING ")
	require.Equal(t, "staging", Environment())
}

func TestDeliveryAttributesCarryEnvironment(t *testing.T) {
	t.Cleanup(func() { SetEnvironment("") })
	SetEnvironment("prod")

	attrs := DeliveryAttributes("main.Ping", "pool", ResultPanic)
	require.Len(t, attrs, 4)
	require.Equal(t, AttrEnvironment, attrs[0].Key)
	require.Equal(t, "prod", attrs[0].Value.AsString())
	require.Equal(t, "main.Ping", attrs[1].Value.AsString())
	require.Equal(t, "pool", attrs[2].Value.AsString())
	require.Equal(t, ResultPanic, attrs[3].Value.AsString())
}
