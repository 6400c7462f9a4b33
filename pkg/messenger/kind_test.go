package messenger

import (
	"testing"

	"github.com/stretchr/testify/require"

	alpha "github.com/coachpo/messenger/internal/testutil/alpha/fixture"
	beta "github.com/coachpo/messenger/internal/testutil/beta/fixture"
)

func TestKindNameIncludesImportPath(t *testing.T) {
	left := KindOf[*alpha.Ping]()
	right := KindOf[*beta.Ping]()

	require.NotEqual(t, left, right)
	require.Equal(t, left.String(), right.String())
	require.Equal(t, "*github.com/coachpo/messenger/internal/testutil/alpha/fixture.Ping", left.Name())
	require.Equal(t, "*github.com/coachpo/messenger/internal/testutil/beta/fixture.Ping", right.Name())
}

func TestKindNameFallsBackForUnnamedTypes(t *testing.T) {
	require.Equal(t, "<nil>", Kind{}.Name())
	require.Equal(t, "[]int", KindOf[[]int]().Name())
	require.Equal(t, "*int", KindOf[*int]().Name())
	require.Equal(t, "messenger.Message", KindOf[Message]().String())
	require.Equal(t, "github.com/coachpo/messenger/pkg/messenger.Message", KindOf[Message]().Name())
}

func TestKindsSortByQualifiedName(t *testing.T) {
	hub := newTestHub(t, WithDefaultReference(ReferenceStrong))
	_, err := Subscribe(hub, func(*beta.Ping) {})
	require.NoError(t, err)
	_, err = Subscribe(hub, func(*alpha.Ping) {})
	require.NoError(t, err)

	kinds := hub.Kinds()
	require.Len(t, kinds, 2)
	require.Equal(t, KindOf[*alpha.Ping](), kinds[0])
	require.Equal(t, KindOf[*beta.Ping](), kinds[1])
}
