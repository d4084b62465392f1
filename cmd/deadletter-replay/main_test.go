package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/jarrod-lowe/publication-registry/internal/eventbus"
)

// mockResubmitter implements Resubmitter for testing.
type mockResubmitter struct {
	resubmitFunc func(ctx context.Context, entries ...eventbus.Entry) ([]eventbus.Entry, error)
	received     []eventbus.Entry
}

func (m *mockResubmitter) Resubmit(ctx context.Context, entries ...eventbus.Entry) ([]eventbus.Entry, error) {
	m.received = append(m.received, entries...)
	if m.resubmitFunc != nil {
		return m.resubmitFunc(ctx, entries...)
	}
	return nil, nil
}

func letterBody(t *testing.T, detailType string) string {
	t.Helper()
	body, err := json.Marshal(eventbus.DeadLetter{
		Entry:    eventbus.Entry{EventBusName: "registry-bus", DetailType: detailType, Detail: "{}"},
		Attempts: 3,
	})
	if err != nil {
		t.Fatalf("marshal dead letter: %v", err)
	}
	return string(body)
}

func TestHandle_ReplaysDeadLetters(t *testing.T) {
	mock := &mockResubmitter{}
	h := newHandler(mock)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: letterBody(t, "NEW_DOI_REQUEST")},
		{MessageId: "m-2", Body: letterBody(t, "DOI_UPDATE")},
	}})
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(resp.BatchItemFailures) != 0 {
		t.Errorf("BatchItemFailures = %v, want none", resp.BatchItemFailures)
	}
	if len(mock.received) != 2 {
		t.Fatalf("received = %d, want 2", len(mock.received))
	}
	if mock.received[0].DetailType != "NEW_DOI_REQUEST" {
		t.Errorf("DetailType = %q, want %q", mock.received[0].DetailType, "NEW_DOI_REQUEST")
	}
	if mock.received[0].EventBusName != "registry-bus" {
		t.Errorf("EventBusName = %q, want %q", mock.received[0].EventBusName, "registry-bus")
	}
}

func TestHandle_InvalidBody(t *testing.T) {
	mock := &mockResubmitter{}
	h := newHandler(mock)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: "not json"},
	}})
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m-1" {
		t.Errorf("BatchItemFailures = %v, want [m-1]", resp.BatchItemFailures)
	}
	if len(mock.received) != 0 {
		t.Errorf("received = %d, want 0", len(mock.received))
	}
}

func TestHandle_StillFailingStaysOnQueue(t *testing.T) {
	mock := &mockResubmitter{
		resubmitFunc: func(ctx context.Context, entries ...eventbus.Entry) ([]eventbus.Entry, error) {
			if entries[0].DetailType == "DOI_UPDATE" {
				return entries, nil
			}
			return nil, nil
		},
	}
	h := newHandler(mock)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: letterBody(t, "NEW_DOI_REQUEST")},
		{MessageId: "m-2", Body: letterBody(t, "DOI_UPDATE")},
	}})
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "m-2" {
		t.Errorf("BatchItemFailures = %v, want [m-2]", resp.BatchItemFailures)
	}
}

func TestHandle_ResubmitError(t *testing.T) {
	mock := &mockResubmitter{
		resubmitFunc: func(ctx context.Context, entries ...eventbus.Entry) ([]eventbus.Entry, error) {
			return entries, errors.New("publish interrupted")
		},
	}
	h := newHandler(mock)

	resp, err := h.handle(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "m-1", Body: letterBody(t, "NEW_DOI_REQUEST")},
	}})
	if err != nil {
		t.Fatalf("handle() error = %v", err)
	}
	if len(resp.BatchItemFailures) != 1 {
		t.Errorf("BatchItemFailures = %v, want [m-1]", resp.BatchItemFailures)
	}
}
