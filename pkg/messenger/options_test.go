package messenger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coachpo/messenger/config"
	"github.com/coachpo/messenger/errs"
)

func TestParseReference(t *testing.T) {
	cases := map[string]Reference{
		"":         ReferenceDefault,
		"weak":     ReferenceWeak,
		" Strong ": ReferenceStrong,
	}
	for raw, want := range cases {
		got, err := ParseReference(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := ParseReference("sticky")
	require.True(t, errs.IsCode(err, errs.CodeInvalid))
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.Default().Messenger
	cfg.Workers = 2
	cfg.QueueDepth = 3
	cfg.DefaultReference = config.ReferenceStrong
	cfg.PurgeInterval = time.Minute

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	hub := newTestHub(t, opts...)
	require.Equal(t, 2, hub.workers)
	require.Equal(t, 3, hub.queueDepth)
	require.Equal(t, ReferenceStrong, hub.defaultReference)
	require.Equal(t, time.Minute, hub.purgeInterval)

	cfg.DefaultReference = "sticky"
	_, err = OptionsFromConfig(cfg)
	require.Error(t, err)
}
