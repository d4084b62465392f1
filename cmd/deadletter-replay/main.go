// Package main implements the deadletter-replay SQS consumer Lambda handler.
// It re-submits dead-lettered bus entries; entries that still fail stay on
// the queue for redrive.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/aws/aws-lambda-go/events"
	"github.com/jarrod-lowe/jmap-service-libs/awsinit"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/otel/attribute"

	"github.com/jarrod-lowe/publication-registry/internal/eventbus"
)

var logger = logging.New()

// Resubmitter re-sends entries to the event bus.
type Resubmitter interface {
	Resubmit(ctx context.Context, entries ...eventbus.Entry) ([]eventbus.Entry, error)
}

// handler implements the deadletter-replay SQS consumer logic.
type handler struct {
	resubmitter Resubmitter
}

// newHandler creates a new handler.
func newHandler(resubmitter Resubmitter) *handler {
	return &handler{resubmitter: resubmitter}
}

// handle processes an SQS event of dead letters.
func (h *handler) handle(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	tracer := tracing.Tracer("publication-deadletter-replay")
	ctx, span := tracer.Start(ctx, "DeadLetterReplayHandler")
	defer span.End()

	span.SetAttributes(attribute.Int("messages", len(event.Records)))

	var failures []events.SQSBatchItemFailure

	for _, record := range event.Records {
		letter, err := eventbus.DecodeDeadLetter(record.Body)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to parse dead letter",
				slog.String("message_id", record.MessageId),
				slog.String("error", err.Error()),
			)
			failures = append(failures, events.SQSBatchItemFailure{
				ItemIdentifier: record.MessageId,
			})
			continue
		}

		remaining, err := h.resubmitter.Resubmit(ctx, letter.Entry)
		if err == nil && len(remaining) == 0 {
			logger.InfoContext(ctx, "Dead letter replayed",
				slog.String("message_id", record.MessageId),
				slog.String("detail_type", letter.Entry.DetailType),
				slog.Int("previous_attempts", letter.Attempts),
			)
			continue
		}

		if err != nil {
			tracing.RecordError(span, err)
			logger.ErrorContext(ctx, "Failed to replay dead letter",
				slog.String("message_id", record.MessageId),
				slog.String("detail_type", letter.Entry.DetailType),
				slog.String("error", err.Error()),
			)
		} else {
			logger.WarnContext(ctx, "Dead letter rejected again by event bus",
				slog.String("message_id", record.MessageId),
				slog.String("detail_type", letter.Entry.DetailType),
			)
		}
		failures = append(failures, events.SQSBatchItemFailure{
			ItemIdentifier: record.MessageId,
		})
	}

	logger.InfoContext(ctx, "Dead letter replay batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("failures", len(failures)),
	)

	return events.SQSEventResponse{
		BatchItemFailures: failures,
	}, nil
}

func main() {
	ctx := context.Background()

	result, err := awsinit.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize", slog.String("error", err.Error()))
		panic(err)
	}

	busName := os.Getenv("EVENT_BUS_NAME")

	opts := []eventbus.Option{eventbus.WithLogger(logger)}
	if n, err := strconv.Atoi(os.Getenv("PUBLISH_MAX_ATTEMPTS")); err == nil {
		opts = append(opts, eventbus.WithMaxAttempts(n))
	}

	publisher, err := eventbus.NewPublisher(eventbus.NewEventBridgeClient(result.Config), nil, busName, opts...)
	if err != nil {
		logger.Error("FATAL: Failed to create publisher", slog.String("error", err.Error()))
		panic(err)
	}

	h := newHandler(publisher)
	result.Start(h.handle)
}
