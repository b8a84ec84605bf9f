package conversation

import (
	"sort"
	"strings"

	"ragconsole/internal/backend"
)

// ModelContextWindow is the token window reported in the debug panel.
const ModelContextWindow = 64000

// stageOrder lists the backend timing keys in pipeline order.
var stageOrder = []string{"t_parse_ms", "t_lexical_ms", "t_vector_ms", "t_rerank_ms", "t_total_ms"}

// Project maps a query response onto what the console renders. It builds
// everything from scratch on each call and never touches resp.
func Project(query string, resp backend.QueryResponse) AssistantPayload {
	summary := resp.Answer
	if i := strings.IndexByte(summary, '\n'); i >= 0 {
		summary = summary[:i]
	}
	sources := make([]backend.Citation, len(resp.Citations))
	copy(sources, resp.Citations)

	n := len(sources)
	coverage := 0.0
	if n > 0 {
		coverage = 1
	}
	confidence := 0.0
	if resp.OnlySourcesVerdict == backend.VerdictPass {
		confidence = 1
	}
	return AssistantPayload{
		Summary: summary,
		Details: resp.Answer,
		Sources: sources,
		Debug: &Debug{
			InterpretedQuery:   query,
			DynamicTopK:        n,
			ChunksUsed:         n,
			CoverageRatio:      coverage,
			ModelContextWindow: ModelContextWindow,
			Confidence:         confidence,
			AgentTrace:         agentTrace(resp.TimingsMS),
		},
	}
}

func agentTrace(timings map[string]float64) []TraceStep {
	trace := make([]TraceStep, 0, len(timings))
	seen := make(map[string]bool, len(stageOrder))
	for _, k := range stageOrder {
		seen[k] = true
		if v, ok := timings[k]; ok {
			trace = append(trace, TraceStep{Stage: k, LatencyMS: v})
		}
	}
	var rest []string
	for k := range timings {
		if !seen[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		trace = append(trace, TraceStep{Stage: k, LatencyMS: timings[k]})
	}
	return trace
}
