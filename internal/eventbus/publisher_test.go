package eventbus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
)

// mockEventBridge implements EventBridgeAPI for testing.
type mockEventBridge struct {
	putEventsFunc func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
	calls         []*eventbridge.PutEventsInput
}

func (m *mockEventBridge) PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	m.calls = append(m.calls, params)
	if m.putEventsFunc != nil {
		return m.putEventsFunc(ctx, params, optFns...)
	}
	return succeedAll(params), nil
}

// mockDeadLetter implements DeadLetterSender for testing.
type mockDeadLetter struct {
	sendFunc func(ctx context.Context, letter DeadLetter) error
	letters  []DeadLetter
}

func (m *mockDeadLetter) SendDeadLetter(ctx context.Context, letter DeadLetter) error {
	if m.sendFunc != nil {
		if err := m.sendFunc(ctx, letter); err != nil {
			return err
		}
	}
	m.letters = append(m.letters, letter)
	return nil
}

func succeedAll(params *eventbridge.PutEventsInput) *eventbridge.PutEventsOutput {
	out := &eventbridge.PutEventsOutput{}
	for i := range params.Entries {
		out.Entries = append(out.Entries, types.PutEventsResultEntry{EventId: aws.String(fmt.Sprintf("id-%d", i))})
	}
	return out
}

// failWhere fails the entries whose detail type matches.
func failWhere(params *eventbridge.PutEventsInput, failing func(detailType string) bool) *eventbridge.PutEventsOutput {
	out := &eventbridge.PutEventsOutput{}
	for _, e := range params.Entries {
		if failing(aws.ToString(e.DetailType)) {
			out.FailedEntryCount++
			out.Entries = append(out.Entries, types.PutEventsResultEntry{
				ErrorCode:    aws.String("InternalFailure"),
				ErrorMessage: aws.String("try again"),
			})
			continue
		}
		out.Entries = append(out.Entries, types.PutEventsResultEntry{EventId: aws.String("ok")})
	}
	return out
}

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestPublisher(t *testing.T, bus EventBridgeAPI, dlq DeadLetterSender, opts ...Option) *Publisher {
	t.Helper()
	base := []Option{
		WithBackoff(time.Millisecond, time.Millisecond),
		WithClock(func() time.Time { return fixedNow }),
	}
	p, err := NewPublisher(bus, dlq, "registry-bus", append(base, opts...)...)
	if err != nil {
		t.Fatalf("NewPublisher() error = %v", err)
	}
	return p
}

func entries(detailTypes ...string) []Entry {
	out := make([]Entry, 0, len(detailTypes))
	for _, dt := range detailTypes {
		out = append(out, Entry{DetailType: dt, Detail: "{}"})
	}
	return out
}

func TestPublish_AllSucceed(t *testing.T) {
	bus := &mockEventBridge{}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq, WithSource("registry-test"))

	res, err := p.Publish(context.Background(), entries("A", "B")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Published != 2 || res.DeadLettered != 0 {
		t.Errorf("Result = %+v, want 2 published", res)
	}
	if len(bus.calls) != 1 {
		t.Fatalf("PutEvents calls = %d, want 1", len(bus.calls))
	}

	e := bus.calls[0].Entries[0]
	if got := aws.ToString(e.EventBusName); got != "registry-bus" {
		t.Errorf("EventBusName = %q, want %q", got, "registry-bus")
	}
	if got := aws.ToString(e.Source); got != "registry-test" {
		t.Errorf("Source = %q, want %q", got, "registry-test")
	}
	if got := aws.ToTime(e.Time); !got.Equal(fixedNow) {
		t.Errorf("Time = %v, want %v", got, fixedNow)
	}
	if len(dlq.letters) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.letters))
	}
}

func TestPublish_KeepsExplicitFields(t *testing.T) {
	bus := &mockEventBridge{}
	p := newTestPublisher(t, bus, &mockDeadLetter{})

	when := fixedNow.Add(-time.Hour)
	_, err := p.Publish(context.Background(), Entry{
		EventBusName: "other-bus",
		Source:       "other-source",
		Time:         when,
		DetailType:   "A",
		Detail:       "{}",
	})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	e := bus.calls[0].Entries[0]
	if got := aws.ToString(e.EventBusName); got != "other-bus" {
		t.Errorf("EventBusName = %q, want %q", got, "other-bus")
	}
	if got := aws.ToString(e.Source); got != "other-source" {
		t.Errorf("Source = %q, want %q", got, "other-source")
	}
	if got := aws.ToTime(e.Time); !got.Equal(when) {
		t.Errorf("Time = %v, want %v", got, when)
	}
}

func TestPublish_RetriesOnlyFailedEntries(t *testing.T) {
	calls := 0
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			calls++
			if calls == 1 {
				return failWhere(params, func(dt string) bool { return dt == "B" }), nil
			}
			return succeedAll(params), nil
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq)

	res, err := p.Publish(context.Background(), entries("A", "B", "C")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Published != 3 {
		t.Errorf("Published = %d, want 3", res.Published)
	}
	if len(bus.calls) != 2 {
		t.Fatalf("PutEvents calls = %d, want 2", len(bus.calls))
	}
	retry := bus.calls[1].Entries
	if len(retry) != 1 || aws.ToString(retry[0].DetailType) != "B" {
		t.Errorf("retried entries = %v, want only B", retry)
	}
	if len(dlq.letters) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.letters))
	}
}

func TestPublish_DeadLettersAfterMaxAttempts(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return failWhere(params, func(dt string) bool { return dt == "B" }), nil
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq, WithMaxAttempts(3))

	res, err := p.Publish(context.Background(), entries("A", "B")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Published != 1 || res.DeadLettered != 1 {
		t.Errorf("Result = %+v, want 1 published and 1 dead-lettered", res)
	}
	if len(bus.calls) != 3 {
		t.Errorf("PutEvents calls = %d, want 3", len(bus.calls))
	}
	if len(dlq.letters) != 1 {
		t.Fatalf("dead letters = %d, want exactly 1", len(dlq.letters))
	}

	letter := dlq.letters[0]
	if letter.Entry.DetailType != "B" {
		t.Errorf("DetailType = %q, want %q", letter.Entry.DetailType, "B")
	}
	if letter.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", letter.Attempts)
	}
	if letter.LastError != "InternalFailure: try again" {
		t.Errorf("LastError = %q, want %q", letter.LastError, "InternalFailure: try again")
	}
	if !letter.FailedAt.Equal(fixedNow) {
		t.Errorf("FailedAt = %v, want %v", letter.FailedAt, fixedNow)
	}
}

func TestPublish_CallErrorFailsWholeBatch(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return nil, errors.New("service unavailable")
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq, WithMaxAttempts(2))

	res, err := p.Publish(context.Background(), entries("A", "B")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.DeadLettered != 2 {
		t.Errorf("DeadLettered = %d, want 2", res.DeadLettered)
	}
	if len(bus.calls) != 2 {
		t.Errorf("PutEvents calls = %d, want 2", len(bus.calls))
	}
	for _, l := range dlq.letters {
		if l.LastError != "service unavailable" {
			t.Errorf("LastError = %q, want %q", l.LastError, "service unavailable")
		}
	}
}

func TestPublish_AttemptTimeoutCountsAsAttempt(t *testing.T) {
	calls := 0
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			calls++
			if calls == 1 {
				<-ctx.Done()
				return nil, ctx.Err()
			}
			return succeedAll(params), nil
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq, WithAttemptTimeout(10*time.Millisecond), WithMaxAttempts(2))

	res, err := p.Publish(context.Background(), entries("A")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Published != 1 {
		t.Errorf("Published = %d, want 1", res.Published)
	}
	if calls != 2 {
		t.Errorf("PutEvents calls = %d, want 2", calls)
	}
}

func TestPublish_AttemptTimeoutExhaustsBudget(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq, WithAttemptTimeout(5*time.Millisecond), WithMaxAttempts(2))

	res, err := p.Publish(context.Background(), entries("A")...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.DeadLettered != 1 {
		t.Errorf("DeadLettered = %d, want 1", res.DeadLettered)
	}
	if len(dlq.letters) != 1 || dlq.letters[0].Attempts != 2 {
		t.Errorf("dead letters = %+v, want one letter after 2 attempts", dlq.letters)
	}
}

func TestPublish_ChunksByTen(t *testing.T) {
	bus := &mockEventBridge{}
	p := newTestPublisher(t, bus, &mockDeadLetter{})

	batch := make([]Entry, 23)
	for i := range batch {
		batch[i] = Entry{DetailType: fmt.Sprintf("E%d", i), Detail: "{}"}
	}

	res, err := p.Publish(context.Background(), batch...)
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res.Published != 23 {
		t.Errorf("Published = %d, want 23", res.Published)
	}

	want := []int{10, 10, 3}
	if len(bus.calls) != len(want) {
		t.Fatalf("PutEvents calls = %d, want %d", len(bus.calls), len(want))
	}
	for i, n := range want {
		if got := len(bus.calls[i].Entries); got != n {
			t.Errorf("call %d entries = %d, want %d", i, got, n)
		}
	}
	if got := aws.ToString(bus.calls[2].Entries[0].DetailType); got != "E20" {
		t.Errorf("third chunk starts at %q, want %q", got, "E20")
	}
}

func TestPublish_NoEntries(t *testing.T) {
	bus := &mockEventBridge{}
	p := newTestPublisher(t, bus, &mockDeadLetter{})

	res, err := p.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if res != (Result{}) {
		t.Errorf("Result = %+v, want zero", res)
	}
	if len(bus.calls) != 0 {
		t.Errorf("PutEvents calls = %d, want 0", len(bus.calls))
	}
}

func TestPublish_DeadLetterFailure(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return failWhere(params, func(string) bool { return true }), nil
		},
	}
	dlq := &mockDeadLetter{
		sendFunc: func(ctx context.Context, letter DeadLetter) error {
			if letter.Entry.DetailType == "A" {
				return errors.New("queue unavailable")
			}
			return nil
		},
	}
	p := newTestPublisher(t, bus, dlq, WithMaxAttempts(1))

	res, err := p.Publish(context.Background(), entries("A", "B")...)
	if !errors.Is(err, ErrDeadLetter) {
		t.Fatalf("Publish() error = %v, want ErrDeadLetter", err)
	}
	if res.DeadLettered != 1 {
		t.Errorf("DeadLettered = %d, want 1", res.DeadLettered)
	}
	if len(dlq.letters) != 1 || dlq.letters[0].Entry.DetailType != "B" {
		t.Errorf("dead letters = %+v, want only B", dlq.letters)
	}
}

func TestPublish_NoDeadLetterQueue(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return failWhere(params, func(string) bool { return true }), nil
		},
	}
	p := newTestPublisher(t, bus, nil, WithMaxAttempts(1))

	if _, err := p.Publish(context.Background(), entries("A")...); !errors.Is(err, ErrDeadLetter) {
		t.Fatalf("Publish() error = %v, want ErrDeadLetter", err)
	}
}

func TestPublish_CancelledContextSkipsDeadLetter(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return nil, ctx.Err()
		},
	}
	dlq := &mockDeadLetter{}
	p := newTestPublisher(t, bus, dlq)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Publish(ctx, entries("A")...)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Publish() error = %v, want context.Canceled", err)
	}
	if len(dlq.letters) != 0 {
		t.Errorf("dead letters = %d, want 0", len(dlq.letters))
	}
}

func TestResubmit(t *testing.T) {
	bus := &mockEventBridge{
		putEventsFunc: func(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
			return failWhere(params, func(dt string) bool { return dt == "B" }), nil
		},
	}
	p := newTestPublisher(t, bus, nil, WithMaxAttempts(2))

	remaining, err := p.Resubmit(context.Background(), entries("A", "B")...)
	if err != nil {
		t.Fatalf("Resubmit() error = %v", err)
	}
	if len(remaining) != 1 || remaining[0].DetailType != "B" {
		t.Errorf("remaining = %+v, want only B", remaining)
	}
	if len(bus.calls) != 2 {
		t.Errorf("PutEvents calls = %d, want 2", len(bus.calls))
	}
}

func TestNewPublisher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		busName string
		opts    []Option
	}{
		{name: "empty bus name", busName: ""},
		{name: "empty source", busName: "bus", opts: []Option{WithSource("")}},
		{name: "zero attempts", busName: "bus", opts: []Option{WithMaxAttempts(0)}},
		{name: "zero attempt timeout", busName: "bus", opts: []Option{WithAttemptTimeout(0)}},
		{name: "zero dead letter timeout", busName: "bus", opts: []Option{WithDeadLetterTimeout(0)}},
		{name: "inverted backoff", busName: "bus", opts: []Option{WithBackoff(time.Second, time.Millisecond)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewPublisher(&mockEventBridge{}, &mockDeadLetter{}, tt.busName, tt.opts...); err == nil {
				t.Error("NewPublisher() error = nil, want error")
			}
		})
	}
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry("NEW_DOI_REQUEST", map[string]string{"doi": "10.1/x"}, "arn:stream")
	if err != nil {
		t.Fatalf("NewEntry() error = %v", err)
	}
	if e.Detail != `{"doi":"10.1/x"}` {
		t.Errorf("Detail = %q, want %q", e.Detail, `{"doi":"10.1/x"}`)
	}
	if len(e.Resources) != 1 || e.Resources[0] != "arn:stream" {
		t.Errorf("Resources = %v, want [arn:stream]", e.Resources)
	}

	if _, err := NewEntry("BAD", func() {}); err == nil {
		t.Error("NewEntry() with unencodable detail error = nil, want error")
	}
}

func TestNewEventBridgeClient_SingleAttempt(t *testing.T) {
	client := NewEventBridgeClient(aws.Config{Region: "eu-west-1"})
	if got := client.Options().Retryer.MaxAttempts(); got != 1 {
		t.Errorf("MaxAttempts = %d, want 1", got)
	}
}
