package nats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/syntrixbase/inkwell/internal/core/pubsub"
)

func TestNewPublisher_NilJetStream(t *testing.T) {
	_, err := NewPublisher(nil, pubsub.PublisherOptions{})
	assert.ErrorContains(t, err, "jetstream cannot be nil")
}

func TestNewPublisher_EnsuresStream(t *testing.T) {
	mockJS := &MockJetStream{}
	mockJS.On("CreateOrUpdateStream", mock.Anything, jetstream.StreamConfig{
		Name:     "INKWELL_CHANGES",
		Subjects: []string{"INKWELL_CHANGES.>"},
		Storage:  jetstream.FileStorage,
		MaxAge:   time.Hour,
	}).Return(nil, nil)

	_, err := NewPublisher(mockJS, pubsub.PublisherOptions{
		StreamName:    "INKWELL_CHANGES",
		SubjectPrefix: "INKWELL_CHANGES",
		Storage:       pubsub.FileStorage,
		MaxAge:        time.Hour,
	})
	require.NoError(t, err)
	mockJS.AssertExpectations(t)
}

func TestNewPublisher_StreamError(t *testing.T) {
	mockJS := &MockJetStream{}
	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, errors.New("denied"))

	_, err := NewPublisher(mockJS, pubsub.PublisherOptions{StreamName: "S"})
	assert.ErrorContains(t, err, "failed to ensure stream")
}

func TestNewPublisher_NoStreamName(t *testing.T) {
	mockJS := &MockJetStream{}
	_, err := NewPublisher(mockJS, pubsub.PublisherOptions{})
	require.NoError(t, err)
	mockJS.AssertNotCalled(t, "CreateOrUpdateStream", mock.Anything, mock.Anything)
}

func TestPublisher_Publish(t *testing.T) {
	mockJS := &MockJetStream{}
	mockJS.On("CreateOrUpdateStream", mock.Anything, mock.Anything).Return(nil, nil)
	mockJS.On("Publish", mock.Anything, "INKWELL_CHANGES.ARTIST#1", []byte("a")).Return(&jetstream.PubAck{}, nil)
	mockJS.On("Publish", mock.Anything, "INKWELL_CHANGES.ARTIST#2", []byte("b")).Return(nil, errors.New("no ack"))

	var published []string
	var failures int
	pub, err := NewPublisher(mockJS, pubsub.PublisherOptions{
		StreamName:    "INKWELL_CHANGES",
		SubjectPrefix: "INKWELL_CHANGES",
		RetryAttempts: 2,
		OnPublish: func(subject string, err error, _ time.Duration) {
			published = append(published, subject)
			if err != nil {
				failures++
			}
		},
	})
	require.NoError(t, err)

	require.NoError(t, pub.Publish(context.Background(), "ARTIST#1", []byte("a")))
	err = pub.Publish(context.Background(), "ARTIST#2", []byte("b"))
	assert.ErrorContains(t, err, "failed to publish to INKWELL_CHANGES.ARTIST#2")

	assert.Equal(t, []string{"INKWELL_CHANGES.ARTIST#1", "INKWELL_CHANGES.ARTIST#2"}, published)
	assert.Equal(t, 1, failures)
	assert.NoError(t, pub.Close())
}
