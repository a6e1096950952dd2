package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
)

func TestMemoryQueue_SendReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx := context.Background()

	for _, body := range []string{"a", "b", "c"} {
		if err := q.Send(ctx, body, 0); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	msgs, err := q.Receive(ctx, 2, 1)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Body != "a" || msgs[1].Body != "b" {
		t.Fatalf("unexpected batch: %#v", msgs)
	}
	if msgs[0].ReceiptHandle == "" {
		t.Fatal("expected receipt handle")
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 buffered message, got %d", q.Len())
	}
}

func TestMemoryQueue_ReceiveTimesOut(t *testing.T) {
	q := NewMemoryQueue(1)
	msgs, err := q.Receive(context.Background(), 1, 1)
	if err != nil || msgs != nil {
		t.Fatalf("expected empty poll, got %v %v", msgs, err)
	}
}

func TestMemoryQueue_ReceiveCanceled(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := q.Receive(ctx, 1, 0); err == nil {
		t.Fatal("expected context error")
	}
}

func TestMemoryQueue_DelayedSend(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), "later", 50*time.Millisecond); err != nil {
		t.Fatalf("send: %v", err)
	}
	if q.Len() != 0 {
		t.Fatal("delayed message must not be visible immediately")
	}
	msgs, err := q.Receive(context.Background(), 1, 2)
	if err != nil || len(msgs) != 1 || msgs[0].Body != "later" {
		t.Fatalf("expected delayed message, got %v %v", msgs, err)
	}
}

func TestMemoryQueue_CloseReleasesBlockedDelayedSend(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), "first", 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(context.Background(), "late", 5*time.Millisecond); err != nil {
		t.Fatalf("delayed send: %v", err)
	}
	// Let the timer fire against the full buffer.
	time.Sleep(50 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		_ = q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close did not release the blocked delayed send")
	}

	msgs, err := q.Receive(context.Background(), 10, 0)
	if err != nil || len(msgs) != 1 || msgs[0].Body != "first" {
		t.Fatalf("expected only the buffered message, got %v %v", msgs, err)
	}
}

func TestMemoryQueue_CloseStopsPendingTimers(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Send(context.Background(), "never", time.Hour); err != nil {
		t.Fatalf("delayed send: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		_ = q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("close waited on an unfired timer")
	}
	if q.Len() != 0 {
		t.Fatal("stopped timer must not deliver")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestMemoryQueue_SendAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	_ = q.Close()

	if err := q.Send(context.Background(), "x", 0); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed, got %v", err)
	}
	if err := q.Send(context.Background(), "x", time.Millisecond); !errors.Is(err, ErrQueueClosed) {
		t.Fatalf("expected ErrQueueClosed for delayed send, got %v", err)
	}
}

type mockSQS struct {
	sent     []*sqs.SendMessageInput
	deleted  []string
	messages []sqstypes.Message
}

func (m *mockSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	m.sent = append(m.sent, in)
	return &sqs.SendMessageOutput{}, nil
}

func (m *mockSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: m.messages}, nil
}

func (m *mockSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	m.deleted = append(m.deleted, aws.ToString(in.ReceiptHandle))
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue(t *testing.T) {
	mock := &mockSQS{messages: []sqstypes.Message{
		{MessageId: aws.String("m-1"), Body: aws.String(`{"id":"job-1"}`), ReceiptHandle: aws.String("rh-1")},
	}}
	q := NewSQSQueue(mock, "https://sqs.local/integration")
	ctx := context.Background()

	if err := q.Send(ctx, "now", 0); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(ctx, "later", 40*time.Second); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := q.Send(ctx, "capped", time.Hour); err != nil {
		t.Fatalf("send: %v", err)
	}
	if mock.sent[0].DelaySeconds != 0 || mock.sent[1].DelaySeconds != 40 || mock.sent[2].DelaySeconds != 900 {
		t.Fatalf("unexpected delays: %d %d %d", mock.sent[0].DelaySeconds, mock.sent[1].DelaySeconds, mock.sent[2].DelaySeconds)
	}

	msgs, err := q.Receive(ctx, 10, 20)
	if err != nil || len(msgs) != 1 || msgs[0].ReceiptHandle != "rh-1" {
		t.Fatalf("unexpected receive: %v %v", msgs, err)
	}

	if err := q.Delete(ctx, ""); err != nil {
		t.Fatalf("delete empty: %v", err)
	}
	if err := q.Delete(ctx, "rh-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(mock.deleted) != 1 || mock.deleted[0] != "rh-1" {
		t.Fatalf("unexpected deletes: %v", mock.deleted)
	}
}
