// Package eventbus publishes domain events to EventBridge.
//
// Partial failures are retried for the failed subset only. Entries that
// still fail after the last attempt are handed to a dead-letter queue once
// and never retried again by the same call.
package eventbus

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one outbound bus entry.
type Entry struct {
	EventBusName string    `json:"eventBusName"`
	Time         time.Time `json:"time"`
	Source       string    `json:"source"`
	DetailType   string    `json:"detailType"`
	Detail       string    `json:"detail"`
	Resources    []string  `json:"resources,omitempty"`
}

// NewEntry builds an entry whose detail is the JSON encoding of detail.
// Bus name, source and time are filled in by the Publisher when empty.
func NewEntry(detailType string, detail any, resources ...string) (Entry, error) {
	body, err := json.Marshal(detail)
	if err != nil {
		return Entry{}, fmt.Errorf("encode %s detail: %w", detailType, err)
	}
	return Entry{
		DetailType: detailType,
		Detail:     string(body),
		Resources:  resources,
	}, nil
}

// DeadLetter is the message body written to the dead-letter queue.
type DeadLetter struct {
	Entry     Entry     `json:"entry"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError,omitempty"`
	FailedAt  time.Time `json:"failedAt"`
}

// Result summarises one Publish call.
type Result struct {
	Published    int
	DeadLettered int
}
