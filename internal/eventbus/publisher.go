package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/cenkalti/backoff/v5"
)

// maxBatchEntries is the PutEvents limit per call.
const maxBatchEntries = 10

// EventBridgeAPI abstracts the EventBridge operations for dependency inversion.
type EventBridgeAPI interface {
	PutEvents(ctx context.Context, params *eventbridge.PutEventsInput, optFns ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error)
}

// ErrDeadLetter is returned when entries could not be handed to the
// dead-letter queue. Those entries are not stored anywhere.
var ErrDeadLetter = errors.New("dead letter hand-off failed")

// errEntriesFailed marks an attempt that left entries unpublished.
var errEntriesFailed = errors.New("entries failed")

// Publisher sends entries to one event bus.
type Publisher struct {
	bus        EventBridgeAPI
	deadLetter DeadLetterSender
	busName    string
	opts       *Options
}

// NewPublisher creates a Publisher. deadLetter may be nil only for publishers used
// exclusively through Resubmit.
func NewPublisher(bus EventBridgeAPI, deadLetter DeadLetterSender, busName string, opts ...Option) (*Publisher, error) {
	options := newOptions()
	for _, o := range opts {
		o(options)
	}
	if err := options.validate(); err != nil {
		return nil, fmt.Errorf("invalid publisher options: %w", err)
	}
	if busName == "" {
		return nil, errors.New("event bus name must not be empty")
	}

	return &Publisher{
		bus:        bus,
		deadLetter: deadLetter,
		busName:    busName,
		opts:       options,
	}, nil
}

// failure is an entry still unpublished after an attempt.
type failure struct {
	entry Entry
	err   string
}

// Publish sends entries to the bus. Entries still failing after the last
// attempt are dead-lettered. An error means either the context ended before
// every entry was settled, or a dead-letter hand-off failed.
func (p *Publisher) Publish(ctx context.Context, entries ...Entry) (Result, error) {
	var result Result

	for _, chunk := range p.chunks(entries) {
		failed, attempts, err := p.send(ctx, chunk)
		result.Published += len(chunk) - len(failed)
		if err != nil {
			return result, err
		}
		if len(failed) == 0 {
			continue
		}

		n, err := p.deadLetterAll(ctx, failed, attempts)
		result.DeadLettered += n
		if err != nil {
			return result, err
		}
	}

	return result, nil
}

// Resubmit sends entries without a dead-letter step and returns those that
// still failed after the last attempt.
func (p *Publisher) Resubmit(ctx context.Context, entries ...Entry) ([]Entry, error) {
	var remaining []Entry
	for _, chunk := range p.chunks(entries) {
		failed, _, err := p.send(ctx, chunk)
		for _, f := range failed {
			remaining = append(remaining, f.entry)
		}
		if err != nil {
			return remaining, err
		}
	}
	return remaining, nil
}

func (p *Publisher) chunks(entries []Entry) [][]Entry {
	now := p.opts.clock()
	var chunks [][]Entry
	for start := 0; start < len(entries); start += maxBatchEntries {
		end := min(start+maxBatchEntries, len(entries))
		chunk := make([]Entry, 0, end-start)
		for _, e := range entries[start:end] {
			if e.EventBusName == "" {
				e.EventBusName = p.busName
			}
			if e.Source == "" {
				e.Source = p.opts.source
			}
			if e.Time.IsZero() {
				e.Time = now
			}
			chunk = append(chunk, e)
		}
		chunks = append(chunks, chunk)
	}
	return chunks
}

// send retries the failed subset of chunk up to maxAttempts. It returns the
// entries that never succeeded and the number of attempts made. The error is
// non-nil only when ctx ended.
func (p *Publisher) send(ctx context.Context, chunk []Entry) ([]failure, int, error) {
	pending := make([]failure, 0, len(chunk))
	for _, e := range chunk {
		pending = append(pending, failure{entry: e})
	}
	attempts := 0

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.opts.initialBackoff
	b.MaxInterval = p.opts.maxBackoff

	operation := func() (struct{}, error) {
		attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.attemptTimeout)
		pending = p.putEvents(attemptCtx, pending)
		cancel()
		if len(pending) == 0 {
			return struct{}{}, nil
		}
		if ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		return struct{}{}, errEntriesFailed
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(p.opts.maxAttempts)),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil && ctx.Err() != nil {
		return pending, attempts, fmt.Errorf("publish interrupted after %d attempts: %w", attempts, ctx.Err())
	}
	return pending, attempts, nil
}

// putEvents makes one PutEvents call and returns the entries that failed.
// A failed call fails every entry in it.
func (p *Publisher) putEvents(ctx context.Context, pending []failure) []failure {
	input := &eventbridge.PutEventsInput{
		Entries: make([]types.PutEventsRequestEntry, 0, len(pending)),
	}
	for _, f := range pending {
		input.Entries = append(input.Entries, types.PutEventsRequestEntry{
			EventBusName: aws.String(f.entry.EventBusName),
			Source:       aws.String(f.entry.Source),
			DetailType:   aws.String(f.entry.DetailType),
			Detail:       aws.String(f.entry.Detail),
			Resources:    f.entry.Resources,
			Time:         aws.Time(f.entry.Time),
		})
	}

	output, err := p.bus.PutEvents(ctx, input)
	if err != nil {
		failed := make([]failure, 0, len(pending))
		for _, f := range pending {
			failed = append(failed, failure{entry: f.entry, err: err.Error()})
		}
		return failed
	}
	if output.FailedEntryCount == 0 {
		return nil
	}

	var failed []failure
	for i, f := range pending {
		if i >= len(output.Entries) {
			failed = append(failed, failure{entry: f.entry, err: "no result for entry"})
			continue
		}
		res := output.Entries[i]
		if res.ErrorCode != nil {
			failed = append(failed, failure{
				entry: f.entry,
				err:   aws.ToString(res.ErrorCode) + ": " + aws.ToString(res.ErrorMessage),
			})
		}
	}
	return failed
}

// deadLetterAll hands every failure to the dead-letter queue once. It keeps
// going after a failed send so one bad message does not strand the rest.
func (p *Publisher) deadLetterAll(ctx context.Context, failed []failure, attempts int) (int, error) {
	if p.deadLetter == nil {
		return 0, fmt.Errorf("%w: no dead-letter queue configured for %d entries", ErrDeadLetter, len(failed))
	}

	// Dead letters are sent even if the caller has given up.
	dlqCtx := context.WithoutCancel(ctx)

	sent := 0
	var errs []error
	for _, f := range failed {
		letter := DeadLetter{
			Entry:     f.entry,
			Attempts:  attempts,
			LastError: f.err,
			FailedAt:  p.opts.clock(),
		}

		sendCtx, cancel := context.WithTimeout(dlqCtx, p.opts.deadLetterTimeout)
		err := p.deadLetter.SendDeadLetter(sendCtx, letter)
		cancel()
		if err != nil {
			errs = append(errs, err)
			p.opts.logger.ErrorContext(ctx, "Failed to dead-letter event",
				slog.String("detail_type", f.entry.DetailType),
				slog.String("last_error", f.err),
				slog.String("error", err.Error()),
			)
			continue
		}

		sent++
		p.opts.logger.WarnContext(ctx, "Event dead-lettered",
			slog.String("detail_type", f.entry.DetailType),
			slog.Int("attempts", attempts),
			slog.String("last_error", f.err),
		)
	}

	if len(errs) > 0 {
		return sent, fmt.Errorf("%w: %w", ErrDeadLetter, errors.Join(errs...))
	}
	return sent, nil
}
