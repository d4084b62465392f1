package eventbus

import (
	"errors"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Option is a functional option for configuring a [Publisher].
type Option func(*Options)

// Options holds the configuration for a [Publisher].
type Options struct {
	source            string
	maxAttempts       int
	attemptTimeout    time.Duration
	deadLetterTimeout time.Duration
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	clock             func() time.Time
	logger            *slog.Logger
}

func newOptions() *Options {
	return &Options{
		source:            "publication-registry",
		maxAttempts:       3,
		attemptTimeout:    5 * time.Second,
		deadLetterTimeout: 10 * time.Second,
		initialBackoff:    100 * time.Millisecond,
		maxBackoff:        2 * time.Second,
		clock:             func() time.Time { return time.Now().UTC() },
		logger:            slog.New(slog.DiscardHandler),
	}
}

func (o *Options) validate() error {
	if o.source == "" {
		return errors.New("event source must not be empty")
	}
	if o.maxAttempts < 1 {
		return errors.New("max attempts must be at least 1")
	}
	if o.attemptTimeout <= 0 {
		return errors.New("attempt timeout must be greater than zero")
	}
	if o.deadLetterTimeout <= 0 {
		return errors.New("dead letter timeout must be greater than zero")
	}
	if o.initialBackoff <= 0 || o.maxBackoff < o.initialBackoff {
		return errors.New("backoff must be positive and max backoff at least the initial backoff")
	}
	return nil
}

// WithSource sets the source of published entries. Default: publication-registry.
func WithSource(source string) Option {
	return func(o *Options) {
		o.source = source
	}
}

// WithMaxAttempts sets how many times an entry is sent before it is
// dead-lettered. Default: 3.
func WithMaxAttempts(n int) Option {
	return func(o *Options) {
		o.maxAttempts = n
	}
}

// WithAttemptTimeout bounds each PutEvents call. A timed out attempt counts
// toward the attempt budget. Default: 5 seconds.
func WithAttemptTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.attemptTimeout = d
	}
}

// WithDeadLetterTimeout bounds each dead-letter send. Default: 10 seconds.
func WithDeadLetterTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.deadLetterTimeout = d
	}
}

// WithBackoff sets the exponential backoff between attempts.
// Default: 100ms initial, 2s max.
func WithBackoff(initial, maxDelay time.Duration) Option {
	return func(o *Options) {
		o.initialBackoff = initial
		o.maxBackoff = maxDelay
	}
}

// WithClock replaces the time source used to stamp entries.
func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.clock = clock
	}
}

// WithLogger sets the logger for dead-letter hand-offs.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Options) {
		o.logger = logger
	}
}

// NewEventBridgeClient builds an EventBridge client that makes a single
// attempt per call. Retries are counted by the Publisher.
func NewEventBridgeClient(cfg aws.Config) *eventbridge.Client {
	return eventbridge.NewFromConfig(cfg, func(o *eventbridge.Options) {
		o.Retryer = retry.AddWithMaxAttempts(o.Retryer, 1)
	})
}

// NewSQSClient builds an SQS client with a bounded retryer for dead letters.
func NewSQSClient(cfg aws.Config, maxAttempts int, maxBackoff time.Duration) *sqs.Client {
	return sqs.NewFromConfig(cfg, func(o *sqs.Options) {
		o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, maxBackoff)
		o.Retryer = retry.AddWithMaxAttempts(o.Retryer, maxAttempts)
	})
}
