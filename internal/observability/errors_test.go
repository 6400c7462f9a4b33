package observability

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/messenger/config"
)

func TestAggregateErrorsSkipsNil(t *testing.T) {
	require.NoError(t, AggregateErrors("shutdown", []error{nil, nil}, nil))
}

func TestAggregateErrorsJoinsAndLogs(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(config.LoggingConfig{Format: "json"}, &buf)
	require.NoError(t, err)
	SetLogger(logger)
	t.Cleanup(func() { SetLogger(nil) })

	first := errors.New("hub close timed out")
	second := errors.New("metrics server refused")
	joined := AggregateErrors("shutdown", []error{first, nil, second}, logrus.Fields{"service": "demo"})

	require.ErrorIs(t, joined, first)
	require.ErrorIs(t, joined, second)
	require.Contains(t, joined.Error(), "shutdown failed")
	require.Contains(t, buf.String(), `"error_count":2`)
	require.Contains(t, buf.String(), `"service":"demo"`)
}
