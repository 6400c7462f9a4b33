package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coachpo/messenger/pkg/messenger"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunClockPublishesUntilCancelled(t *testing.T) {
	hub, err := messenger.New(messenger.WithDefaultReference(messenger.ReferenceStrong))
	require.NoError(t, err)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	var ticks atomic.Int32
	_, err = messenger.Subscribe(hub, func(*Tick) { ticks.Add(1) })
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		runClock(ctx, hub, quietLogger(), 1000)
	}()
	require.Eventually(t, func() bool { return ticks.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	<-done
}

func TestWireSubscribersRegistersEveryPolicy(t *testing.T) {
	dispatcher := messenger.NewLoopDispatcher(nil)
	defer dispatcher.Close()
	hub, err := messenger.New(messenger.WithDispatcher(dispatcher))
	require.NoError(t, err)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	tokens, err := wireSubscribers(hub, quietLogger(), time.Hour)
	require.NoError(t, err)
	require.Len(t, tokens, 3)

	require.Equal(t, 3, messenger.CountFor[*Tick](hub))
	require.Equal(t, 1, messenger.CountFor[*Status](hub))
	require.ElementsMatch(t, []string{"aggregate", "trace", "transient"}, messenger.TagsFor[*Tick](hub))
	runtime.KeepAlive(tokens)
}

func TestWriteStatsEncodesSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	stats := messenger.Stats{
		Kinds:     []messenger.KindStats{{Kind: "*main.Tick", Subscribers: 2}},
		Published: 7,
	}
	require.NoError(t, writeStats(path, stats))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded messenger.Stats
	require.NoError(t, json.Unmarshal(raw, &decoded))
	require.Equal(t, stats.Published, decoded.Published)
	require.Equal(t, "*main.Tick", decoded.Kinds[0].Kind)
}
