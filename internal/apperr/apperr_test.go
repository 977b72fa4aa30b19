package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfUnwrapsChain(t *testing.T) {
	base := NotFound("conversation")
	wrapped := fmt.Errorf("append: %w", base)

	if got := KindOf(wrapped); got != KindNotFound {
		t.Fatalf("kind: want=%s got=%s", KindNotFound, got)
	}
	if !Is(wrapped, KindNotFound) {
		t.Fatalf("Is should match wrapped not found")
	}
	if got := KindOf(errors.New("boom")); got != KindInternal {
		t.Fatalf("plain error kind: want=%s got=%s", KindInternal, got)
	}
	if Is(nil, KindInternal) {
		t.Fatalf("nil error must not match any kind")
	}
}

func TestProviderDetail(t *testing.T) {
	cause := errors.New("quota exceeded")
	err := Provider("Lexi couldn't answer right now", cause)

	if err.Detail() != "quota exceeded" {
		t.Fatalf("detail: got=%q", err.Detail())
	}
	if err.Error() != "Lexi couldn't answer right now: quota exceeded" {
		t.Fatalf("error text: got=%q", err.Error())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("provider error should unwrap to its cause")
	}
	if Validation("too long").Detail() != "" {
		t.Fatalf("validation error should have no detail")
	}
}
