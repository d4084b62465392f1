package eventbus

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// DeadLetterSender hands permanently failed entries to durable storage.
type DeadLetterSender interface {
	SendDeadLetter(ctx context.Context, letter DeadLetter) error
}

// SQSSender abstracts SQS send operations for dependency inversion.
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSDeadLetterQueue writes dead letters to an SQS queue.
type SQSDeadLetterQueue struct {
	client   SQSSender
	queueURL string
}

// NewSQSDeadLetterQueue creates a new SQSDeadLetterQueue.
func NewSQSDeadLetterQueue(client SQSSender, queueURL string) *SQSDeadLetterQueue {
	return &SQSDeadLetterQueue{
		client:   client,
		queueURL: queueURL,
	}
}

// SendDeadLetter sends a dead letter message to SQS.
func (q *SQSDeadLetterQueue) SendDeadLetter(ctx context.Context, letter DeadLetter) error {
	body, err := json.Marshal(letter)
	if err != nil {
		return err
	}

	bodyStr := string(body)
	_, err = q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    &q.queueURL,
		MessageBody: &bodyStr,
	})
	return err
}

// DecodeDeadLetter parses a dead letter message body.
func DecodeDeadLetter(body string) (DeadLetter, error) {
	var letter DeadLetter
	err := json.Unmarshal([]byte(body), &letter)
	return letter, err
}
