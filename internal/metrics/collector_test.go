package metrics

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	alpha "github.com/coachpo/messenger/internal/testutil/alpha/fixture"
	beta "github.com/coachpo/messenger/internal/testutil/beta/fixture"
	"github.com/coachpo/messenger/pkg/messenger"
)

type staticStats messenger.Stats

func (s staticStats) Stats() messenger.Stats { return messenger.Stats(s) }

type tick struct {
	messenger.Envelope
}

func TestHubCollectorReportsSnapshot(t *testing.T) {
	source := staticStats{
		Kinds: []messenger.KindStats{
			{Kind: "*main.Ping", Subscribers: 3, Weak: 1, Tags: map[string]int{"ui": 2}},
		},
		PendingPurges: 1,
		Published:     10,
		Faults:        2,
	}
	collector := NewHubCollector(source)

	expected := `
# HELP messenger_subscribers Current subscriptions per message kind
# TYPE messenger_subscribers gauge
messenger_subscribers{kind="*main.Ping"} 3
# HELP messenger_tagged_subscribers Current subscriptions per message kind and tag
# TYPE messenger_tagged_subscribers gauge
messenger_tagged_subscribers{kind="*main.Ping",tag="ui"} 2
# HELP messenger_published_total Messages published
# TYPE messenger_published_total counter
messenger_published_total 10
# HELP messenger_handler_faults_total Handler panics recovered
# TYPE messenger_handler_faults_total counter
messenger_handler_faults_total 2
`
	require.NoError(t, testutil.CollectAndCompare(collector, strings.NewReader(expected),
		"messenger_subscribers", "messenger_tagged_subscribers", "messenger_published_total", "messenger_handler_faults_total"))
	require.Equal(t, 1, testutil.CollectAndCount(collector, "messenger_pending_purges"))
}

func TestRegistryServesLiveHub(t *testing.T) {
	hub, err := messenger.New(messenger.WithDefaultReference(messenger.ReferenceStrong))
	require.NoError(t, err)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	_, err = messenger.Subscribe(hub, func(*tick) {}, messenger.WithTag("clock"))
	require.NoError(t, err)
	require.NoError(t, hub.Publish(&tick{Envelope: messenger.NewEnvelope("test")}))

	reg := NewRegistry(hub)
	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	require.True(t, names["messenger_subscribers"])
	require.True(t, names["go_goroutines"])

	require.NoError(t, testutil.ScrapeAndCompare(srv.URL, strings.NewReader(`
# HELP messenger_published_total Messages published
# TYPE messenger_published_total counter
messenger_published_total 2
`), "messenger_published_total"))
}

func TestRegistryKeepsSameNamedKindsApart(t *testing.T) {
	hub, err := messenger.New(messenger.WithDefaultReference(messenger.ReferenceStrong))
	require.NoError(t, err)
	defer func() { require.NoError(t, hub.Close(context.Background())) }()

	_, err = messenger.Subscribe(hub, func(*alpha.Ping) {})
	require.NoError(t, err)
	_, err = messenger.Subscribe(hub, func(*beta.Ping) {})
	require.NoError(t, err)
	require.NoError(t, hub.Publish(&beta.Ping{From: "test"}))

	reg := NewRegistry(hub)
	_, err = reg.Gather()
	require.NoError(t, err)

	expected := `
# HELP messenger_subscribers Current subscriptions per message kind
# TYPE messenger_subscribers gauge
messenger_subscribers{kind="*github.com/coachpo/messenger/internal/testutil/alpha/fixture.Ping"} 1
messenger_subscribers{kind="*github.com/coachpo/messenger/internal/testutil/beta/fixture.Ping"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "messenger_subscribers"))
}
