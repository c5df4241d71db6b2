package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishUnknownEvent(t *testing.T) {
	b := New(NewRegistry("known:event"))
	err := b.Publish(context.Background(), "unknown:event", nil)
	var uerr *UnknownEventError
	require.ErrorAs(t, err, &uerr)
	assert.Equal(t, Name("unknown:event"), uerr.Name)
}

func TestSubscribeUnknownEvent(t *testing.T) {
	b := New(NewRegistry())
	_, err := b.Subscribe("unknown:event", func(ctx context.Context, p Payload) error { return nil })
	var uerr *UnknownEventError
	require.ErrorAs(t, err, &uerr)
}

func TestPublishFanoutOrder(t *testing.T) {
	b := New(NewRegistry("e"))
	var mu sync.Mutex
	var order []int

	for i := 0; i < 3; i++ {
		i := i
		_, err := b.Subscribe("e", func(ctx context.Context, p Payload) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
	}

	require.NoError(t, b.Publish(context.Background(), "e", Payload{"x": 1}))
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestHandlerPanicIsolation(t *testing.T) {
	b := New(NewRegistry("e"))
	called := false

	_, err := b.Subscribe("e", func(ctx context.Context, p Payload) error {
		panic("boom")
	})
	require.NoError(t, err)
	_, err = b.Subscribe("e", func(ctx context.Context, p Payload) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, b.Publish(context.Background(), "e", nil))
	assert.True(t, called)
}

func TestHandlerErrorIsolation(t *testing.T) {
	b := New(NewRegistry("e"))
	called := false
	_, _ = b.Subscribe("e", func(ctx context.Context, p Payload) error {
		return errors.New("fail")
	})
	_, _ = b.Subscribe("e", func(ctx context.Context, p Payload) error {
		called = true
		return nil
	})
	assert.NoError(t, b.Publish(context.Background(), "e", nil))
	assert.True(t, called)
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	b := New(NewRegistry("e"))
	calls := 0
	unsub, err := b.Subscribe("e", func(ctx context.Context, p Payload) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	unsub()
	unsub()

	require.NoError(t, b.Publish(context.Background(), "e", nil))
	assert.Equal(t, 0, calls)
}

func TestPatternSubscriptionReceivesConcreteName(t *testing.T) {
	b := New(NewRegistry("workflow:completed", "workflow:failed"))
	var got []Name
	b.SubscribePattern("workflow:*", func(ctx context.Context, name Name, p Payload) error {
		got = append(got, name)
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), "workflow:completed", nil))
	require.NoError(t, b.Publish(context.Background(), "workflow:failed", nil))
	assert.Equal(t, []Name{"workflow:completed", "workflow:failed"}, got)
}

func TestPayloadIsDeepClonedPerHandler(t *testing.T) {
	b := New(NewRegistry("e"))
	original := Payload{"nested": map[string]any{"count": 1}}

	b.Subscribe("e", func(ctx context.Context, p Payload) error {
		p["nested"].(map[string]any)["count"] = 99
		return nil
	})

	var secondSeen any
	b.Subscribe("e", func(ctx context.Context, p Payload) error {
		secondSeen = p["nested"].(map[string]any)["count"]
		return nil
	})

	require.NoError(t, b.Publish(context.Background(), "e", original))
	assert.Equal(t, 1, secondSeen)
	assert.Equal(t, 1, original["nested"].(map[string]any)["count"])
}
