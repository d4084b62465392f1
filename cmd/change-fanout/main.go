// Package main implements the change-fanout DynamoDB Streams handler.
// It maps each stream record to a change event, decides whether the change
// is a DOI event, and publishes the event to the bus.
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/jarrod-lowe/jmap-service-libs/logging"
	"github.com/jarrod-lowe/jmap-service-libs/tracing"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-lambda-go/otellambda/xrayconfig"
	"go.opentelemetry.io/contrib/instrumentation/github.com/aws/aws-sdk-go-v2/otelaws"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
	"github.com/jarrod-lowe/publication-registry/internal/changerecord"
	"github.com/jarrod-lowe/publication-registry/internal/doievent"
	"github.com/jarrod-lowe/publication-registry/internal/dynamo"
	"github.com/jarrod-lowe/publication-registry/internal/eventbus"
)

var logger = logging.New()

const defaultConcurrency = 4

// Publisher sends entries to the event bus.
type Publisher interface {
	Publish(ctx context.Context, entries ...eventbus.Entry) (eventbus.Result, error)
}

// handler implements the change-fanout stream consumer logic.
type handler struct {
	publisher   Publisher
	concurrency int
}

// newHandler creates a new handler.
func newHandler(publisher Publisher, concurrency int) *handler {
	if concurrency < 1 {
		concurrency = 1
	}
	return &handler{
		publisher:   publisher,
		concurrency: concurrency,
	}
}

// group is the ordered run of records sharing one partition key.
type group struct {
	key     string
	records []events.DynamoDBEventRecord
}

// handle processes a DynamoDB Streams event. Records of one partition are
// handled in stream order; different partitions run concurrently. When a
// record fails, it and every later record of its partition are reported back
// for redelivery.
func (h *handler) handle(ctx context.Context, event events.DynamoDBEvent) (events.DynamoDBEventResponse, error) {
	tracer := tracing.Tracer("publication-change-fanout")
	ctx, span := tracer.Start(ctx, "ChangeFanoutHandler")
	defer span.End()

	groups := groupByPartition(event.Records)
	span.SetAttributes(
		attribute.Int("records", len(event.Records)),
		attribute.Int("partitions", len(groups)),
	)

	var (
		mu       sync.Mutex
		failures []events.DynamoDBBatchItemFailure
	)

	var g errgroup.Group
	g.SetLimit(h.concurrency)
	for _, grp := range groups {
		g.Go(func() error {
			failed := h.processGroup(ctx, grp)
			if len(failed) == 0 {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, seq := range failed {
				failures = append(failures, events.DynamoDBBatchItemFailure{ItemIdentifier: seq})
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.InfoContext(ctx, "Change fanout batch completed",
		slog.Int("total", len(event.Records)),
		slog.Int("partitions", len(groups)),
		slog.Int("failures", len(failures)),
	)

	return events.DynamoDBEventResponse{
		BatchItemFailures: failures,
	}, nil
}

// processGroup handles records in order and returns the sequence numbers of
// the records left unprocessed.
func (h *handler) processGroup(ctx context.Context, grp group) []string {
	for i, record := range grp.records {
		err := ctx.Err()
		if err == nil {
			err = h.processRecord(ctx, record)
		}
		if err == nil {
			continue
		}

		logger.ErrorContext(ctx, "Failed to process change record",
			slog.String("partition_key", grp.key),
			slog.String("sequence_number", record.Change.SequenceNumber),
			slog.Int("remaining", len(grp.records)-i),
			slog.String("error", err.Error()),
		)

		failed := make([]string, 0, len(grp.records)-i)
		for _, rest := range grp.records[i:] {
			failed = append(failed, rest.Change.SequenceNumber)
		}
		return failed
	}
	return nil
}

// processRecord maps, classifies and publishes one record. Records that
// cannot be mapped are logged and skipped.
func (h *handler) processRecord(ctx context.Context, record events.DynamoDBEventRecord) error {
	change, err := changerecord.Map(record)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindMapping {
			logger.ErrorContext(ctx, "Skipping unmappable change record",
				slog.String("event_id", record.EventID),
				slog.String("sequence_number", record.Change.SequenceNumber),
				slog.String("error", err.Error()),
			)
			return nil
		}
		return err
	}

	ev, ok := doievent.Decide(change)
	if !ok {
		return nil
	}

	entry, err := eventbus.NewEntry(string(ev.Type), ev, change.SourceARN)
	if err != nil {
		logger.ErrorContext(ctx, "Skipping event with unencodable detail",
			slog.String("event_type", string(ev.Type)),
			slog.String("sequence_number", change.SequenceNumber),
			slog.String("error", err.Error()),
		)
		return nil
	}

	res, err := h.publisher.Publish(ctx, entry)
	if err != nil {
		return err
	}

	logger.InfoContext(ctx, "DOI event published",
		slog.String("event_type", string(ev.Type)),
		slog.String("resource_id", ev.Projection.ResourceIdentifier),
		slog.Bool("dead_lettered", res.DeadLettered > 0),
	)
	return nil
}

// groupByPartition splits records by partition key, keeping stream order
// within each group and first-seen order across groups.
func groupByPartition(records []events.DynamoDBEventRecord) []group {
	index := make(map[string]int)
	var groups []group
	for _, record := range records {
		key := partitionKey(record)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, group{key: key})
		}
		groups[i].records = append(groups[i].records, record)
	}
	return groups
}

// partitionKey returns the record's table partition key. Records without
// one are grouped by their own sequence number.
func partitionKey(record events.DynamoDBEventRecord) string {
	if pk, ok := record.Change.Keys[dynamo.AttrPK]; ok && pk.DataType() == events.DataTypeString {
		return pk.String()
	}
	return "seq#" + record.Change.SequenceNumber
}

func envInt(name string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return fallback
	}
	return v
}

func envDuration(name string, fallback time.Duration) time.Duration {
	v, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	ctx := context.Background()

	tp, err := tracing.Init(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to initialize tracer provider", slog.String("error", err.Error()))
		panic(err)
	}
	otel.SetTracerProvider(tp)

	busName := os.Getenv("EVENT_BUS_NAME")
	deadLetterQueueURL := os.Getenv("DEAD_LETTER_QUEUE_URL")

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		logger.Error("FATAL: Failed to load AWS config", slog.String("error", err.Error()))
		panic(err)
	}

	// Instrument AWS SDK clients with OTel tracing
	otelaws.AppendMiddlewares(&cfg.APIOptions)

	opts := []eventbus.Option{
		eventbus.WithMaxAttempts(envInt("PUBLISH_MAX_ATTEMPTS", 3)),
		eventbus.WithAttemptTimeout(envDuration("PUBLISH_ATTEMPT_TIMEOUT", 5*time.Second)),
		eventbus.WithLogger(logger),
	}
	if source := os.Getenv("EVENT_SOURCE"); source != "" {
		opts = append(opts, eventbus.WithSource(source))
	}

	deadLetter := eventbus.NewSQSDeadLetterQueue(eventbus.NewSQSClient(cfg, 5, 5*time.Second), deadLetterQueueURL)
	publisher, err := eventbus.NewPublisher(eventbus.NewEventBridgeClient(cfg), deadLetter, busName, opts...)
	if err != nil {
		logger.Error("FATAL: Failed to create publisher", slog.String("error", err.Error()))
		panic(err)
	}

	h := newHandler(publisher, envInt("FANOUT_CONCURRENCY", defaultConcurrency))
	lambda.Start(otellambda.InstrumentHandler(h.handle, xrayconfig.WithRecommendedOptions(tp)...))
}
