package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	"github.com/jarrod-lowe/publication-registry/internal/apperr"
)

const reasonConditionalCheckFailed = "ConditionalCheckFailed"

// TransactionConflictError reports the operations of a cancelled transaction
// whose conditions failed. Indices refer to the order passed to TransactWrite.
type TransactionConflictError struct {
	Operations []int
}

func (e *TransactionConflictError) Error() string {
	return fmt.Sprintf("conditions failed for operations %v", e.Operations)
}

// FailedOperations returns the indices of the operations whose conditions
// failed, or nil when err is not a transaction conflict.
func FailedOperations(err error) []int {
	var conflict *TransactionConflictError
	if errors.As(err, &conflict) {
		return conflict.Operations
	}
	return nil
}

// ConflictAt reports whether the operation at index failed its condition.
func ConflictAt(err error, index int) bool {
	return slices.Contains(FailedOperations(err), index)
}

// classify maps an SDK error to an apperr kind.
func classify(op string, err error) error {
	var condErr *types.ConditionalCheckFailedException
	if errors.As(err, &condErr) {
		return apperr.Wrap(apperr.KindConflict, op, err)
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		return classifyCancellation(op, canceled)
	}

	if isThrottle(err) {
		return &apperr.Error{Kind: apperr.KindStoreUnavailable, Op: op, Reason: "throttled", Err: err}
	}

	// Server faults, timeouts and anything else the SDK returns
	// after its own retries are transient from the caller's point of view.
	return apperr.Wrap(apperr.KindStoreUnavailable, op, err)
}

func classifyCancellation(op string, canceled *types.TransactionCanceledException) error {
	var failed []int
	throttled := false
	for i, reason := range canceled.CancellationReasons {
		switch aws.ToString(reason.Code) {
		case reasonConditionalCheckFailed:
			failed = append(failed, i)
		case "ThrottlingError", "ProvisionedThroughputExceeded":
			throttled = true
		}
	}

	if len(failed) > 0 {
		return apperr.Wrap(apperr.KindConflict, op, &TransactionConflictError{Operations: failed})
	}
	if throttled {
		return apperr.Wrap(apperr.KindStoreUnavailable, op, canceled)
	}
	return apperr.Wrap(apperr.KindTransactionFailed, op, canceled)
}

// isThrottle reports whether err is a DynamoDB throttling response.
func isThrottle(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.ErrorCode() {
	case "ThrottlingException", "ProvisionedThroughputExceededException", "RequestLimitExceeded":
		return true
	default:
		return false
	}
}
