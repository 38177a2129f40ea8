package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

func receive(t *testing.T, ch <-chan pubsub.Message) pubsub.Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "channel closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func assertNoMessage(t *testing.T, ch <-chan pubsub.Message, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on %s", msg.Subject())
	case <-time.After(wait):
	}
}

func subscribe(t *testing.T, e *Engine, opts pubsub.ConsumerOptions) (<-chan pubsub.Message, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	c, err := e.NewConsumer(opts)
	require.NoError(t, err)
	ch, err := c.Subscribe(ctx)
	require.NoError(t, err)
	return ch, cancel
}

// =============================================================================
// Engine Tests
// =============================================================================

func TestEngine_Lifecycle(t *testing.T) {
	engine := New()
	assert.False(t, engine.IsClosed())

	require.NoError(t, engine.Close())
	require.NoError(t, engine.Close())
	assert.True(t, engine.IsClosed())

	_, err := engine.NewPublisher(pubsub.PublisherOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
	_, err = engine.NewConsumer(pubsub.ConsumerOptions{})
	assert.ErrorIs(t, err, ErrEngineClosed)
}

// =============================================================================
// Routing Tests
// =============================================================================

func TestPublisher_SubjectPrefix(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{StreamName: "INKWELL_CHANGES"})

	pub, err := engine.NewPublisher(pubsub.PublisherOptions{StreamName: "INKWELL_CHANGES", SubjectPrefix: "INKWELL_CHANGES"})
	require.NoError(t, err)
	require.NoError(t, pub.Publish(context.Background(), "ARTIST#42", []byte("data")))

	msg := receive(t, msgCh)
	assert.Equal(t, "INKWELL_CHANGES.ARTIST#42", msg.Subject())
	assert.Equal(t, []byte("data"), msg.Data())
}

func TestConsumer_FilterSubject(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: "INKWELL_UPSERTS.*"})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, "INKWELL_CHANGES.x", []byte("skip")))
	require.NoError(t, pub.Publish(ctx, "INKWELL_UPSERTS.42", []byte("keep")))

	msg := receive(t, msgCh)
	assert.Equal(t, "INKWELL_UPSERTS.42", msg.Subject())
	assertNoMessage(t, msgCh, 50*time.Millisecond)
}

func TestBroker_DuplicateSubscribe(t *testing.T) {
	engine := New()
	defer engine.Close()

	subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: "test.>"})

	c, _ := engine.NewConsumer(pubsub.ConsumerOptions{FilterSubject: "test.>"})
	_, err := c.Subscribe(context.Background())
	assert.ErrorIs(t, err, ErrPatternSubscribed)
}

func TestBroker_BacklogDeliveredOnSubscribe(t *testing.T) {
	engine := New()
	defer engine.Close()

	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	ctx := context.Background()
	require.NoError(t, pub.Publish(ctx, "INKWELL_UPSERTS.1", []byte("a")))
	require.NoError(t, pub.Publish(ctx, "INKWELL_UPSERTS.2", []byte("b")))
	require.NoError(t, pub.Publish(ctx, "OTHER.1", []byte("c")))

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{StreamName: "INKWELL_UPSERTS"})
	assert.Equal(t, []byte("a"), receive(t, msgCh).Data())
	assert.Equal(t, []byte("b"), receive(t, msgCh).Data())
	assertNoMessage(t, msgCh, 50*time.Millisecond)

	// the unmatched message is still retained for a later consumer
	other, _ := subscribe(t, engine, pubsub.ConsumerOptions{StreamName: "OTHER"})
	assert.Equal(t, []byte("c"), receive(t, other).Data())
}

func TestBroker_BacklogReplayedBeforeLaterPublishes(t *testing.T) {
	ctx := context.Background()
	for i := 0; i < 200; i++ {
		engine := New()
		pub, _ := engine.NewPublisher(pubsub.PublisherOptions{SubjectPrefix: "INKWELL_CHANGES"})

		require.NoError(t, pub.Publish(ctx, "ARTIST#42", []byte("created")))
		msgCh, cancel := subscribe(t, engine, pubsub.ConsumerOptions{StreamName: "INKWELL_CHANGES"})
		require.NoError(t, pub.Publish(ctx, "ARTIST#42", []byte("deleted")))

		require.Equal(t, "created", string(receive(t, msgCh).Data()), "iteration %d", i)
		require.Equal(t, "deleted", string(receive(t, msgCh).Data()), "iteration %d", i)

		cancel()
		engine.Close()
	}
}

func TestBroker_PublishRacingSubscribeKeepsOrder(t *testing.T) {
	const n = 100
	for i := 0; i < 50; i++ {
		engine := New()
		pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})

		done := make(chan struct{})
		go func() {
			defer close(done)
			for j := 0; j < n; j++ {
				assert.NoError(t, pub.Publish(context.Background(), "run.R1", []byte(strconv.Itoa(j))))
			}
		}()

		msgCh, cancel := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: "run.>"})
		for j := 0; j < n; j++ {
			require.Equal(t, strconv.Itoa(j), string(receive(t, msgCh).Data()), "iteration %d", i)
		}
		<-done
		assertNoMessage(t, msgCh, 5*time.Millisecond)

		cancel()
		engine.Close()
	}
}

func TestConsumer_ContextCancelClosesChannel(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, cancel := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">"})
	cancel()

	select {
	case _, ok := <-msgCh:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}
}

func TestPublisher_ContextCancelWhileBlocked(t *testing.T) {
	engine := New()
	defer engine.Close()

	subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">", ChannelBufSize: 1})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("fill")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pub.Publish(ctx, "x", []byte("blocked"))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPublisher_OnPublish(t *testing.T) {
	engine := New()
	defer engine.Close()

	var subjects []string
	var errs []error
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{
		SubjectPrefix: "P",
		OnPublish: func(subject string, err error, _ time.Duration) {
			subjects = append(subjects, subject)
			errs = append(errs, err)
		},
	})
	require.NoError(t, pub.Publish(context.Background(), "a", nil))
	require.NoError(t, pub.Close())
	assert.ErrorIs(t, pub.Publish(context.Background(), "b", nil), ErrEngineClosed)

	assert.Equal(t, []string{"P.a"}, subjects)
	assert.Equal(t, []error{nil}, errs)
}

// =============================================================================
// Acknowledgment Tests
// =============================================================================

func TestMessage_AckIsFinal(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">"})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	msg := receive(t, msgCh)
	require.NoError(t, msg.Ack())
	require.NoError(t, msg.Nak())
	assertNoMessage(t, msgCh, 50*time.Millisecond)
}

func TestMessage_NakRedelivers(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">", StreamName: "S", ConsumerName: "c"})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	msg := receive(t, msgCh)
	md, _ := msg.Metadata()
	assert.Equal(t, uint64(1), md.NumDelivered)
	assert.Equal(t, "S", md.Stream)
	assert.Equal(t, "c", md.Consumer)

	require.NoError(t, msg.Nak())
	again := receive(t, msgCh)
	md, _ = again.Metadata()
	assert.Equal(t, uint64(2), md.NumDelivered)

	require.NoError(t, again.NakWithDelay(30*time.Millisecond))
	start := time.Now()
	third := receive(t, msgCh)
	assert.GreaterOrEqual(t, time.Since(start), 25*time.Millisecond)
	md, _ = third.Metadata()
	assert.Equal(t, uint64(3), md.NumDelivered)
	require.NoError(t, third.Term())
	assertNoMessage(t, msgCh, 50*time.Millisecond)
}

func TestMessage_MaxDeliver(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">", MaxDeliver: 2})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	require.NoError(t, receive(t, msgCh).Nak())
	require.NoError(t, receive(t, msgCh).Nak())
	assertNoMessage(t, msgCh, 50*time.Millisecond)
}

func TestMessage_NakDoesNotDropWhenBufferFull(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">", ChannelBufSize: 1})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, "x", []byte("1")))
	first := receive(t, msgCh)
	require.NoError(t, pub.Publish(ctx, "x", []byte("2")))

	// buffer is full; Nak must not block and must not lose the message
	done := make(chan struct{})
	go func() {
		_ = first.Nak()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Nak blocked")
	}

	got := map[string]bool{}
	got[string(receive(t, msgCh).Data())] = true
	got[string(receive(t, msgCh).Data())] = true
	assert.Equal(t, map[string]bool{"1": true, "2": true}, got)
}

func TestNakWithDelay_SubscriptionCancelled(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, cancel := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">"})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})
	require.NoError(t, pub.Publish(context.Background(), "x", []byte("1")))

	msg := receive(t, msgCh)
	require.NoError(t, msg.NakWithDelay(time.Hour))
	cancel()

	select {
	case _, ok := <-msgCh:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("pending redelivery kept the channel open")
	}
}

// =============================================================================
// Concurrency Tests
// =============================================================================

func TestConcurrent_PublishSubscribe(t *testing.T) {
	engine := New()
	defer engine.Close()

	msgCh, _ := subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: "k.*", ChannelBufSize: 10})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for j := 0; j < n/4; j++ {
				assert.NoError(t, pub.Publish(context.Background(), fmt.Sprintf("k.%d", w), []byte{byte(j)}))
			}
		}(i)
	}

	for i := 0; i < n; i++ {
		require.NoError(t, receive(t, msgCh).Ack())
	}
	wg.Wait()
}

func TestConcurrent_CloseWhilePublishing(t *testing.T) {
	engine := New()
	subscribe(t, engine, pubsub.ConsumerOptions{FilterSubject: ">", ChannelBufSize: 1})
	pub, _ := engine.NewPublisher(pubsub.PublisherOptions{})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = pub.Publish(context.Background(), "x", nil)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, engine.Close())
	wg.Wait()
}
