package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutTopicFails(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "events", map[string]string{"a": "b"})
	require.ErrorContains(t, err, "not configured")
}

func TestCarrierRoundTrip(t *testing.T) {
	t.Parallel()

	c := carrier{}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
