package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(KindConflict, "store.Put", "already exists"))

	if !errors.Is(err, ErrConflict) {
		t.Error("expected errors.Is(err, ErrConflict)")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("conflict must not match ErrNotFound")
	}
	if KindOf(err) != KindConflict {
		t.Errorf("KindOf = %v, want %v", KindOf(err), KindConflict)
	}
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("throttled")
	err := Wrap(KindStoreUnavailable, "store.Get", cause)

	if !errors.Is(err, cause) {
		t.Error("expected cause to be reachable")
	}
	if !Retryable(err) {
		t.Error("store unavailable should be retryable")
	}
	if Retryable(New(KindCorruptEntry, "codec.Decode", "bad")) {
		t.Error("corrupt entry must not be retryable")
	}
}

func TestError_Message(t *testing.T) {
	err := New(KindIllegalTransition, "ticket.Transition", "REMOVED -> CLOSED")
	want := "ticket.Transition: illegal transition: REMOVED -> CLOSED"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestPublicMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"illegal transition shows reason", New(KindIllegalTransition, "op", "ticket is closed"), "ticket is closed"},
		{"forbidden without reason", New(KindForbidden, "op", ""), "forbidden"},
		{"store fault hides detail", Wrap(KindStoreUnavailable, "op", errors.New("ProvisionedThroughputExceeded on table x")), "service temporarily unavailable, please retry"},
		{"plain error", errors.New("boom"), "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PublicMessage(tt.err); got != tt.want {
				t.Errorf("PublicMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
