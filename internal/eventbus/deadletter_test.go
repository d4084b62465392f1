package eventbus

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// mockSQSSender implements SQSSender for testing.
type mockSQSSender struct {
	sendFunc func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func (m *mockSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, params, optFns...)
	}
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSDeadLetterQueue_SendDeadLetter(t *testing.T) {
	var capturedBody, capturedQueueURL string
	mock := &mockSQSSender{
		sendFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			capturedBody = *params.MessageBody
			capturedQueueURL = *params.QueueUrl
			return &sqs.SendMessageOutput{}, nil
		},
	}

	failedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	letter := DeadLetter{
		Entry: Entry{
			EventBusName: "registry-bus",
			Source:       "publication-registry",
			DetailType:   "NEW_DOI_REQUEST",
			Detail:       `{"type":"NEW_DOI_REQUEST"}`,
			Time:         failedAt,
		},
		Attempts:  3,
		LastError: "InternalFailure: boom",
		FailedAt:  failedAt,
	}

	q := NewSQSDeadLetterQueue(mock, "https://sqs.example.com/dlq")
	if err := q.SendDeadLetter(context.Background(), letter); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if capturedQueueURL != "https://sqs.example.com/dlq" {
		t.Errorf("QueueUrl = %q, want %q", capturedQueueURL, "https://sqs.example.com/dlq")
	}

	decoded, err := DecodeDeadLetter(capturedBody)
	if err != nil {
		t.Fatalf("failed to parse message body: %v", err)
	}
	if decoded.Entry.DetailType != "NEW_DOI_REQUEST" {
		t.Errorf("DetailType = %q, want %q", decoded.Entry.DetailType, "NEW_DOI_REQUEST")
	}
	if decoded.Entry.Detail != letter.Entry.Detail {
		t.Errorf("Detail = %q, want %q", decoded.Entry.Detail, letter.Entry.Detail)
	}
	if decoded.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", decoded.Attempts)
	}
	if decoded.LastError != "InternalFailure: boom" {
		t.Errorf("LastError = %q, want %q", decoded.LastError, "InternalFailure: boom")
	}
	if !decoded.FailedAt.Equal(failedAt) {
		t.Errorf("FailedAt = %v, want %v", decoded.FailedAt, failedAt)
	}
}

func TestSQSDeadLetterQueue_SQSError(t *testing.T) {
	mock := &mockSQSSender{
		sendFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			return nil, errors.New("sqs send failed")
		},
	}

	q := NewSQSDeadLetterQueue(mock, "https://sqs.example.com/dlq")
	if err := q.SendDeadLetter(context.Background(), DeadLetter{}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestDecodeDeadLetter_Invalid(t *testing.T) {
	if _, err := DecodeDeadLetter("not json"); err == nil {
		t.Fatal("expected error, got nil")
	}
}
