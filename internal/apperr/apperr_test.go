package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestNew_MatchesKindAndSelf(t *testing.T) {
	errSlotNotFound := New(ErrNotFound, "slot not found")
	wrapped := fmt.Errorf("book slot: %w", errSlotNotFound)

	if !errors.Is(wrapped, errSlotNotFound) {
		t.Error("expected wrapped error to match the specific sentinel")
	}
	if !errors.Is(wrapped, ErrNotFound) {
		t.Error("expected wrapped error to match its kind")
	}
	if errors.Is(wrapped, ErrSlotUnavailable) {
		t.Error("did not expect match on an unrelated kind")
	}
	if errSlotNotFound.Error() != "slot not found" {
		t.Errorf("unexpected message %q", errSlotNotFound.Error())
	}
}

func TestTransient(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Transient(cause)

	if !errors.Is(err, ErrTransientStore) {
		t.Error("expected transient kind")
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to stay reachable")
	}
	if err.Error() != cause.Error() {
		t.Errorf("unexpected message %q", err.Error())
	}
}

func TestTransient_LeavesDomainErrorsAlone(t *testing.T) {
	domain := New(ErrSlotUnavailable, "slot is booked")
	if got := Transient(domain); got != domain {
		t.Errorf("expected domain error unchanged, got %v", got)
	}
	if Transient(nil) != nil {
		t.Error("expected nil to stay nil")
	}

	once := Transient(errors.New("timeout"))
	if Transient(once) != once {
		t.Error("expected already-transient error unchanged")
	}
}
