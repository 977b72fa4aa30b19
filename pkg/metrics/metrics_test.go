package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLLMCall(t *testing.T) {
	in := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("test-provider", "in"))
	out := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("test-provider", "out"))

	RecordLLMCall("test-provider", "success", 0.2, 12, 3)
	RecordLLMCall("test-provider", "error", 0.1, 0, 0)

	if got := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("test-provider", "in")) - in; got != 12 {
		t.Fatalf("tokens in: want=12 got=%v", got)
	}
	if got := testutil.ToFloat64(LLMTokensTotal.WithLabelValues("test-provider", "out")) - out; got != 3 {
		t.Fatalf("tokens out: want=3 got=%v", got)
	}
}

func TestRecordPrunedSkipsZero(t *testing.T) {
	before := testutil.ToFloat64(ConversationsPruned.WithLabelValues("test"))
	RecordPruned("test", 0)
	RecordPruned("test", 4)
	if got := testutil.ToFloat64(ConversationsPruned.WithLabelValues("test")) - before; got != 4 {
		t.Fatalf("pruned: want=4 got=%v", got)
	}
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "200"))
	RecordRequest("GET", "/health", "200", 0.001)
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/health", "200")) - before; got != 1 {
		t.Fatalf("requests: want=1 got=%v", got)
	}
}
