package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	contractx "github.com/tanpawarit/chative-pizzeria/agent/contract"
)

func TestMetricsExposition(t *testing.T) {
	t.Parallel()

	m := New("test", nil)
	m.TurnCompleted("ok", 1200*time.Millisecond)
	m.TurnCompleted("degraded", 300*time.Millisecond)
	m.StageFailed(contractx.StageFinalize)
	m.ToolExecuted("search_menu", "ok")
	m.ToolExecuted("search_menu", "ok")
	m.CacheLookup("hit")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	raw, _ := io.ReadAll(rec.Body)
	body := string(raw)

	for _, want := range []string{
		`test_turns_total{outcome="ok"} 1`,
		`test_turns_total{outcome="degraded"} 1`,
		`test_stage_failures_total{stage="finalize"} 1`,
		`test_tool_executions_total{outcome="ok",tool="search_menu"} 2`,
		`test_context_cache_lookups_total{result="hit"} 1`,
		`test_turn_latency_ms_count 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q:\n%s", want, body)
		}
	}
}
