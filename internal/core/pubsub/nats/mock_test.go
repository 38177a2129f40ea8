package nats

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/mock"
)

// MockJetStream records stream, consumer and publish calls.
type MockJetStream struct {
	mock.Mock
}

var _ JetStream = (*MockJetStream)(nil)

func (m *MockJetStream) CreateOrUpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	args := m.Called(ctx, cfg)
	s, _ := args.Get(0).(jetstream.Stream)
	return s, args.Error(1)
}

func (m *MockJetStream) CreateOrUpdateConsumer(ctx context.Context, stream string, cfg jetstream.ConsumerConfig) (jetstream.Consumer, error) {
	args := m.Called(ctx, stream, cfg)
	c, _ := args.Get(0).(jetstream.Consumer)
	return c, args.Error(1)
}

func (m *MockJetStream) Publish(ctx context.Context, subject string, data []byte, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	args := m.Called(ctx, subject, data)
	ack, _ := args.Get(0).(*jetstream.PubAck)
	return ack, args.Error(1)
}

// MockConsumer hands the Consume callback to the test through HandlerCh.
// Methods other than Consume are not used and panic via the nil embed.
type MockConsumer struct {
	mock.Mock
	jetstream.Consumer
	handlers chan jetstream.MessageHandler
}

func NewMockConsumer() *MockConsumer {
	return &MockConsumer{handlers: make(chan jetstream.MessageHandler, 1)}
}

func (m *MockConsumer) Consume(handler jetstream.MessageHandler, _ ...jetstream.PullConsumeOpt) (jetstream.ConsumeContext, error) {
	args := m.Called(handler)
	select {
	case m.handlers <- handler:
	default:
	}
	cc, _ := args.Get(0).(jetstream.ConsumeContext)
	return cc, args.Error(1)
}

func (m *MockConsumer) HandlerCh() <-chan jetstream.MessageHandler {
	return m.handlers
}

type MockConsumeContext struct {
	mock.Mock
	jetstream.ConsumeContext
	closed chan struct{}
}

func NewMockConsumeContext() *MockConsumeContext {
	return &MockConsumeContext{closed: make(chan struct{})}
}

func (m *MockConsumeContext) Stop() {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	m.Called()
}

func (m *MockConsumeContext) Closed() <-chan struct{} {
	return m.closed
}

// MockMsg is a delivery with fixed subject and data; settlement calls are
// recorded.
type MockMsg struct {
	mock.Mock
	jetstream.Msg
	subject string
	data    []byte
}

func NewMockMsg(subject string, data []byte) *MockMsg {
	return &MockMsg{subject: subject, data: data}
}

func (m *MockMsg) Data() []byte    { return m.data }
func (m *MockMsg) Subject() string { return m.subject }

func (m *MockMsg) Ack() error { return m.Called().Error(0) }
func (m *MockMsg) Nak() error { return m.Called().Error(0) }
func (m *MockMsg) Term() error {
	return m.Called().Error(0)
}

func (m *MockMsg) NakWithDelay(d time.Duration) error {
	return m.Called(d).Error(0)
}

func (m *MockMsg) Metadata() (*jetstream.MsgMetadata, error) {
	args := m.Called()
	md, _ := args.Get(0).(*jetstream.MsgMetadata)
	return md, args.Error(1)
}
