package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

// maxBacklog bounds messages held for subjects nobody consumes yet.
const maxBacklog = 10000

// broker routes published messages to subscriptions by subject pattern.
type broker struct {
	mu            sync.RWMutex
	subscriptions map[string]*subscription
	// backlog holds messages published before a matching consumer subscribed,
	// so a consumer that starts after its producer still sees them.
	backlog []backlogEntry
	closed  atomic.Bool
}

type backlogEntry struct {
	subject   string
	data      []byte
	timestamp time.Time
}

// subscription represents a single consumer's subscription.
type subscription struct {
	pattern    string
	opts       pubsub.ConsumerOptions
	msgCh      chan pubsub.Message
	ctx        context.Context
	cancelFunc context.CancelFunc
	// inflight tracks redelivery goroutines so unsubscribe can close msgCh safely.
	inflight sync.WaitGroup
	stateMu  sync.Mutex
	stopped  bool
	// While replaying, live publishes queue behind the backlog in pending
	// instead of going straight to msgCh.
	replaying bool
	pending   []*message
}

// track registers a goroutine that may send on msgCh. It fails once the
// subscription is stopping.
func (s *subscription) track() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if s.stopped {
		return false
	}
	s.inflight.Add(1)
	return true
}

// stop cancels the subscription, waits for tracked senders and closes msgCh.
func (s *subscription) stop() {
	s.stateMu.Lock()
	s.stopped = true
	s.stateMu.Unlock()
	s.cancelFunc()
	s.inflight.Wait()
	close(s.msgCh)
}

func newBroker() *broker {
	return &broker{subscriptions: make(map[string]*subscription)}
}

func (s *subscription) newMessage(subject string, data []byte, ts time.Time) *message {
	return &message{
		data:         data,
		subject:      subject,
		timestamp:    ts,
		numDelivered: 1,
		sub:          s,
	}
}

// publish sends a message to all matching subscriptions. Without a match the
// message is kept in the backlog.
func (b *broker) publish(ctx context.Context, subject string, data []byte) error {
	if b.closed.Load() {
		return ErrEngineClosed
	}

	now := time.Now()
	b.mu.Lock()
	var targets []*subscription
	for pattern, sub := range b.subscriptions {
		if matchSubject(pattern, subject) {
			targets = append(targets, sub)
		}
	}
	if len(targets) == 0 {
		if len(b.backlog) >= maxBacklog {
			b.backlog = b.backlog[1:]
		}
		b.backlog = append(b.backlog, backlogEntry{subject: subject, data: data, timestamp: now})
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	for _, sub := range targets {
		msg := sub.newMessage(subject, data, now)
		if sub.queueBehindReplay(msg) || !sub.track() {
			continue
		}
		err := sub.deliver(ctx, msg)
		sub.inflight.Done()
		if err != nil {
			return err
		}
	}
	return nil
}

// queueBehindReplay appends msg to pending if a replay is still running.
// Once a replay finishes it never restarts.
func (s *subscription) queueBehindReplay(msg *message) bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	if !s.replaying {
		return false
	}
	s.pending = append(s.pending, msg)
	return true
}

// replay feeds pending into msgCh in order until it is empty, then hands
// delivery back to publish. Runs under a track() registration.
func (s *subscription) replay() {
	defer s.inflight.Done()
	for {
		s.stateMu.Lock()
		if len(s.pending) == 0 || s.stopped {
			s.replaying = false
			s.pending = nil
			s.stateMu.Unlock()
			return
		}
		msg := s.pending[0]
		s.pending[0] = nil
		s.pending = s.pending[1:]
		s.stateMu.Unlock()

		if err := s.deliver(s.ctx, msg); err != nil {
			s.stateMu.Lock()
			s.replaying = false
			s.pending = nil
			s.stateMu.Unlock()
			return
		}
	}
}

// deliver blocks until the message is queued or either context ends.
// Callers must hold a track() registration.
func (s *subscription) deliver(ctx context.Context, msg *message) error {
	select {
	case s.msgCh <- msg:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
	}
	return nil
}

// subscribe registers the only subscription for pattern and hands it any
// backlog it matches, ahead of anything published afterwards. The returned
// func unsubscribes and closes the channel.
func (b *broker) subscribe(ctx context.Context, pattern string, opts pubsub.ConsumerOptions, bufSize int) (<-chan pubsub.Message, func(), error) {
	if b.closed.Load() {
		return nil, nil, ErrEngineClosed
	}

	b.mu.Lock()
	if b.subscriptions[pattern] != nil {
		b.mu.Unlock()
		return nil, nil, ErrPatternSubscribed
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		pattern:    pattern,
		opts:       opts,
		msgCh:      make(chan pubsub.Message, bufSize),
		ctx:        subCtx,
		cancelFunc: cancel,
	}

	kept := b.backlog[:0]
	for _, e := range b.backlog {
		if matchSubject(pattern, e.subject) {
			sub.pending = append(sub.pending, sub.newMessage(e.subject, e.data, e.timestamp))
		} else {
			kept = append(kept, e)
		}
	}
	b.backlog = kept
	sub.replaying = len(sub.pending) > 0
	b.subscriptions[pattern] = sub
	b.mu.Unlock()

	if sub.replaying && sub.track() {
		go sub.replay()
	}

	unsubscribe := func() {
		b.mu.Lock()
		current := b.subscriptions[pattern] == sub
		if current {
			delete(b.subscriptions, pattern)
		}
		b.mu.Unlock()
		if current {
			sub.stop()
		}
	}

	return sub.msgCh, unsubscribe, nil
}

// close shuts down the broker and all subscriptions.
func (b *broker) close() error {
	if b.closed.Swap(true) {
		return nil
	}

	b.mu.Lock()
	subs := b.subscriptions
	b.subscriptions = nil
	b.backlog = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
	return nil
}

func (b *broker) isClosed() bool {
	return b.closed.Load()
}
