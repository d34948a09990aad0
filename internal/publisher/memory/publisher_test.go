package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherKeepsOrder(t *testing.T) {
	t.Parallel()

	pub := New(4)
	id, err := pub.Publish(context.Background(), "blog-events", map[string]string{"type": "post.published"})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id)
	_, err = pub.Publish(context.Background(), "blog-events", "second")
	require.NoError(t, err)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "second", msgs[1].Payload)

	msgs[0].Topic = "modified"
	assert.Equal(t, "blog-events", pub.Messages()[0].Topic)
}

func TestPublisherEvictsOldest(t *testing.T) {
	t.Parallel()

	pub := New(3)
	for i := 1; i <= 5; i++ {
		_, err := pub.Publish(context.Background(), "t", i)
		require.NoError(t, err)
	}

	var payloads []any
	for _, m := range pub.Messages() {
		payloads = append(payloads, m.Payload)
	}
	assert.Equal(t, []any{3, 4, 5}, payloads)

	recent := pub.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, 5, recent[0].Payload)
	assert.Equal(t, "memory-4", recent[1].ID)
	assert.Len(t, pub.Recent(0), 3)
}

func TestNewDefaultsCapacity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultCapacity, cap(New(0).ring))
}
