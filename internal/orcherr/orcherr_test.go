package orcherr

import (
	"errors"
	"fmt"
	"testing"
)

func TestRetriableKinds(t *testing.T) {
	retriable := []Kind{KindRateLimited, KindTimeout, KindTransientNetwork, KindServerError}
	for _, k := range retriable {
		if !k.Retriable() {
			t.Errorf("%s should be retriable", k)
		}
	}

	fatal := []Kind{KindBadRequest, KindAuthFailed, KindNotFound, KindCircuitOpen,
		KindPoolExhausted, KindGovernanceBlocked, KindApprovalRejected, KindInternal}
	for _, k := range fatal {
		if k.Retriable() {
			t.Errorf("%s should not be retriable", k)
		}
	}
}

func TestAsUnwrapsThroughWrapping(t *testing.T) {
	cause := New(KindRateLimited, "trace-1", errors.New("slow down"))
	wrapped := fmt.Errorf("dispatch failed: %w", cause)

	if got := As(wrapped); got != KindRateLimited {
		t.Fatalf("As(wrapped) = %s, want rate_limited", got)
	}
	if got := As(errors.New("anonymous")); got != KindInternal {
		t.Fatalf("As(plain) = %s, want internal_error", got)
	}
}

func TestErrorStringIncludesTraceID(t *testing.T) {
	err := New(KindTimeout, "trace-9", errors.New("deadline"))
	msg := err.Error()
	if msg != "timeout (trace=trace-9): deadline" {
		t.Fatalf("unexpected error string %q", msg)
	}
}
