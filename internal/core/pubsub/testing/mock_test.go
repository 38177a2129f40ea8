package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

var (
	_ pubsub.Publisher = (*MockPublisher)(nil)
	_ pubsub.Message   = (*MockMessage)(nil)
	_ pubsub.Consumer  = (*MockConsumer)(nil)
	_ pubsub.Provider  = (*MockProvider)(nil)
)

func TestMockPublisher(t *testing.T) {
	pub := NewMockPublisher()
	ctx := context.Background()

	pub.FailNext(errors.New("first"))
	assert.EqualError(t, pub.Publish(ctx, "a", []byte("1")), "first")
	require.NoError(t, pub.Publish(ctx, "b", []byte("2")))

	msgs := pub.WaitFor(1, time.Second)
	require.Len(t, msgs, 1)
	assert.Equal(t, "b", msgs[0].Subject)

	require.NoError(t, pub.Close())
	assert.True(t, pub.IsClosed())
}

func TestMockMessage_FirstSettlementWins(t *testing.T) {
	msg := NewMockMessageDelivered("s", []byte("d"), 3)
	md, _ := msg.Metadata()
	assert.Equal(t, uint64(3), md.NumDelivered)
	assert.Equal(t, Pending, msg.Wait(10*time.Millisecond))

	require.NoError(t, msg.NakWithDelay(time.Second))
	require.NoError(t, msg.Ack())
	assert.Equal(t, Naked, msg.Wait(time.Second))
	assert.Equal(t, time.Second, msg.NakDelay())
	assert.Equal(t, "nak", msg.Outcome().String())
}

func TestMockConsumer(t *testing.T) {
	c := NewMockConsumer()
	ctx, cancel := context.WithCancel(context.Background())

	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)

	c.Send(NewMockMessage("x", nil))
	got := <-ch
	assert.Equal(t, "x", got.Subject())

	cancel()
	_, ok := <-ch
	assert.False(t, ok)

	c.SetError(errors.New("down"))
	_, err = c.Subscribe(context.Background())
	assert.Error(t, err)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	_, _ = p.NewPublisher(pubsub.PublisherOptions{StreamName: "S"})
	_, _ = p.NewConsumer(pubsub.ConsumerOptions{StreamName: "S", MaxDeliver: 5})

	assert.Equal(t, "S", p.PublisherOpts()[0].StreamName)
	assert.Equal(t, 5, p.ConsumerOpts()[0].MaxDeliver)
	require.NoError(t, p.Close())
	assert.True(t, p.IsClosed())
}
