package kafka

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"office-realtime/internal/ingest"
)

type fakeReader struct {
	mu        sync.Mutex
	pending   []kafka.Message
	committed []int64
	closed    bool
	drained   chan struct{}
}

func newFakeReader(values ...string) *fakeReader {
	r := &fakeReader{drained: make(chan struct{})}
	for i, v := range values {
		r.pending = append(r.pending, kafka.Message{Offset: int64(i), Value: []byte(v)})
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	if len(r.pending) > 0 {
		msg := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()
		return msg, nil
	}
	r.mu.Unlock()

	select {
	case <-r.drained:
	default:
		close(r.drained)
	}
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

type recordingApplier struct {
	mu      sync.Mutex
	applied []string
}

func (a *recordingApplier) Apply(_ context.Context, cmd ingest.Command) error {
	if cmd.Type == "teleport" {
		return ingest.ErrUnknownCommand
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.applied = append(a.applied, cmd.Type)
	return nil
}

func TestConsumerSkipsBadMessagesAndCommitsAll(t *testing.T) {
	reader := newFakeReader(
		`{"type":"system-status","payload":{"status":"ok"}}`,
		`garbage`,
		`{"type":"teleport"}`,
		`{"type":"notify-user","userId":"42","payload":{"title":"x"}}`,
	)
	applier := &recordingApplier{}
	consumer := NewConsumer(reader, applier, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	<-reader.drained
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []string{"system-status", "notify-user"}, applier.applied)
	assert.Equal(t, []int64{0, 1, 2, 3}, reader.committed)
	assert.True(t, reader.closed)
}

type failingReader struct{ fakeReader }

func (r *failingReader) FetchMessage(context.Context) (kafka.Message, error) {
	return kafka.Message{}, errors.New("broker unreachable")
}

func TestConsumerReturnsFetchErrors(t *testing.T) {
	consumer := NewConsumer(&failingReader{}, &recordingApplier{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.EqualError(t, consumer.Run(context.Background()), "broker unreachable")
}

func TestCommandPublisher(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	defer producer.Close()

	producer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, _ := msg.Key.Encode()
		value, _ := msg.Value.Encode()
		if string(key) != "42" {
			return errors.New("unexpected key " + string(key))
		}
		if gjson.GetBytes(value, "type").String() != ingest.CommandNotifyUser {
			return errors.New("unexpected value " + string(value))
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	publisher := NewCommandPublisher(producer, "office.realtime.events")

	_, _, err := publisher.Publish(context.Background(), ingest.Command{
		Type:    ingest.CommandNotifyUser,
		UserID:  "42",
		Payload: []byte(`{"title":"x"}`),
	})
	require.NoError(t, err)

	_, _, err = publisher.Publish(context.Background(), ingest.Command{Type: ingest.CommandSystemStatus})
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}
