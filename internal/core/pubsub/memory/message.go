package memory

import (
	"sync"
	"time"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

// message is one delivery attempt on a subscription. A Nak after the
// subscription's MaxDeliver attempts drops it, matching JetStream.
type message struct {
	data      []byte
	subject   string
	timestamp time.Time
	sub       *subscription

	mu           sync.Mutex
	numDelivered uint64
	settled      bool
}

func (m *message) Data() []byte    { return m.data }
func (m *message) Subject() string { return m.subject }

func (m *message) Ack() error {
	m.settle()
	return nil
}

// Term settles the message without redelivery.
func (m *message) Term() error {
	m.settle()
	return nil
}

func (m *message) Nak() error {
	return m.NakWithDelay(0)
}

func (m *message) NakWithDelay(delay time.Duration) error {
	if !m.settle() || m.exhausted() || !m.sub.track() {
		return nil
	}
	go m.redeliver(delay)
	return nil
}

func (m *message) Metadata() (pubsub.MessageMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return pubsub.MessageMetadata{
		NumDelivered: m.numDelivered,
		Timestamp:    m.timestamp,
		Subject:      m.subject,
		Stream:       m.sub.opts.StreamName,
		Consumer:     m.sub.opts.ConsumerName,
	}, nil
}

// settle reports whether this call moved the message out of flight.
func (m *message) settle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.settled
	m.settled = true
	return !was
}

func (m *message) exhausted() bool {
	limit := m.sub.opts.MaxDeliver
	m.mu.Lock()
	defer m.mu.Unlock()
	return limit > 0 && m.numDelivered >= uint64(limit)
}

// redeliver runs under a track() registration.
func (m *message) redeliver(delay time.Duration) {
	sub := m.sub
	defer sub.inflight.Done()
	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-sub.ctx.Done():
			return
		}
	}

	m.mu.Lock()
	m.settled = false
	m.numDelivered++
	m.mu.Unlock()

	select {
	case sub.msgCh <- m:
	case <-sub.ctx.Done():
	}
}
