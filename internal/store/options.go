package store

import (
	"errors"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// Option is a functional option for configuring a [Store].
type Option func(*Options)

// Options holds the configuration for a [Store].
type Options struct {
	callTimeout    time.Duration
	consistentRead bool
}

func newOptions() *Options {
	return &Options{
		callTimeout:    5 * time.Second,
		consistentRead: true,
	}
}

func (o *Options) validate() error {
	if o.callTimeout <= 0 {
		return errors.New("store call timeout must be greater than zero")
	}
	return nil
}

// WithCallTimeout bounds every individual DynamoDB call. Default: 5 seconds.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.callTimeout = d
	}
}

// WithConsistentRead controls strongly consistent reads for Get and
// partition queries. Index queries are always eventually consistent.
// Default: true.
func WithConsistentRead(consistent bool) Option {
	return func(o *Options) {
		o.consistentRead = consistent
	}
}

// NewClient builds a DynamoDB client whose SDK retryer is bounded.
func NewClient(cfg aws.Config, maxAttempts int, maxBackoff time.Duration) *dynamodb.Client {
	return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		o.Retryer = retry.AddWithMaxBackoffDelay(o.Retryer, maxBackoff)
		o.Retryer = retry.AddWithMaxAttempts(o.Retryer, maxAttempts)
	})
}
