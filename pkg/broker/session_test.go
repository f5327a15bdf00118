package broker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/foxbridge/pkg/wire"
)

func newTestSession(t *testing.T) *session {
	t.Helper()
	return newSession(New(Options{}), nil, 1)
}

func TestSessionAddSubscription(t *testing.T) {
	sess := newTestSession(t)

	assert.True(t, sess.addSubscription(42, 7))
	assert.True(t, sess.hasSubscriptionID(42))

	sub, ok := sess.subscriptionForChannel(7)
	require.True(t, ok)
	assert.Equal(t, wire.SubscriptionID(42), sub)
}

func TestSessionRejectsSecondSubscriptionOnChannel(t *testing.T) {
	sess := newTestSession(t)

	require.True(t, sess.addSubscription(1, 7))
	assert.False(t, sess.addSubscription(2, 7), "one subscription per channel per session")
	assert.False(t, sess.hasSubscriptionID(2))
}

func TestSessionRemoveSubscription(t *testing.T) {
	sess := newTestSession(t)
	require.True(t, sess.addSubscription(1, 7))

	ch, ok := sess.removeSubscription(1)
	require.True(t, ok)
	assert.Equal(t, wire.ChannelID(7), ch)

	// Both directions of the mapping are cleared.
	assert.False(t, sess.hasSubscriptionID(1))
	_, ok = sess.subscriptionForChannel(7)
	assert.False(t, ok)
}

func TestSessionRemoveUnknownSubscription(t *testing.T) {
	sess := newTestSession(t)

	_, ok := sess.removeSubscription(99)
	assert.False(t, ok)
}

func TestSessionDropChannel(t *testing.T) {
	sess := newTestSession(t)
	require.True(t, sess.addSubscription(1, 7))
	require.True(t, sess.addSubscription(2, 8))

	assert.True(t, sess.dropChannel(7))
	assert.False(t, sess.dropChannel(7), "second drop is a no-op")

	assert.False(t, sess.hasSubscriptionID(1))
	assert.True(t, sess.hasSubscriptionID(2), "other channels unaffected")
	assert.Equal(t, []wire.ChannelID{8}, sess.subscribedChannels())
}

func TestSessionClientChannels(t *testing.T) {
	sess := newTestSession(t)
	ch := wire.ClientChannel{ID: 5, Topic: "/chat", Encoding: "json", SchemaName: "Chat"}

	assert.True(t, sess.addClientChannel(ch))
	assert.False(t, sess.addClientChannel(ch), "duplicate client channel id rejected")
	assert.True(t, sess.hasClientChannel(5))

	assert.True(t, sess.removeClientChannel(5))
	assert.False(t, sess.removeClientChannel(5))
	assert.False(t, sess.hasClientChannel(5))
}

func TestSessionParamSubscriptions(t *testing.T) {
	sess := newTestSession(t)

	assert.True(t, sess.addParamSub("x"))
	assert.False(t, sess.addParamSub("x"), "duplicate name is not re-added")
	assert.ElementsMatch(t, []string{"x"}, sess.paramSubList())

	filtered := sess.filterParams([]wire.Parameter{
		{Name: "x", Value: 1},
		{Name: "y", Value: 2},
	})
	require.Len(t, filtered, 1)
	assert.Equal(t, "x", filtered[0].Name)

	assert.True(t, sess.removeParamSub("x"))
	assert.False(t, sess.removeParamSub("x"))
	assert.Empty(t, sess.paramSubList())
}
