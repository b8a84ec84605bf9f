package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragconsole/internal/backend"
)

func TestProject(t *testing.T) {
	resp := backend.QueryResponse{
		Answer:             "Employees get 28 days.\nCarry-over is limited to 7 days.",
		OnlySourcesVerdict: backend.VerdictPass,
		Citations:          []backend.Citation{cite("a"), cite("b"), cite("c")},
		CorrelationID:      "corr-1",
		TimingsMS: map[string]float64{
			"t_total_ms":   310,
			"t_vector_ms":  80,
			"t_parse_ms":   4,
			"t_cache_ms":   1,
			"t_rerank_ms":  120,
			"t_lexical_ms": 30,
			"t_acl_ms":     2,
		},
	}

	p := Project("vacation days", resp)

	assert.Equal(t, "Employees get 28 days.", p.Summary)
	assert.Equal(t, resp.Answer, p.Details)
	assert.Len(t, p.Sources, 3)
	require.NotNil(t, p.Debug)
	assert.Equal(t, "vacation days", p.Debug.InterpretedQuery)
	assert.Equal(t, 3, p.Debug.DynamicTopK)
	assert.Equal(t, 3, p.Debug.ChunksUsed)
	assert.Equal(t, 1.0, p.Debug.CoverageRatio)
	assert.Equal(t, 1.0, p.Debug.Confidence)
	assert.Equal(t, ModelContextWindow, p.Debug.ModelContextWindow)

	stages := make([]string, 0, len(p.Debug.AgentTrace))
	for _, s := range p.Debug.AgentTrace {
		stages = append(stages, s.Stage)
	}
	assert.Equal(t, []string{"t_parse_ms", "t_lexical_ms", "t_vector_ms", "t_rerank_ms", "t_total_ms", "t_acl_ms", "t_cache_ms"}, stages)
}

func TestProjectWithoutCitations(t *testing.T) {
	p := Project("q", backend.QueryResponse{Answer: "single line", OnlySourcesVerdict: backend.VerdictFail})

	assert.Equal(t, "single line", p.Summary)
	assert.NotNil(t, p.Sources)
	assert.Empty(t, p.Sources)
	assert.Zero(t, p.Debug.CoverageRatio)
	assert.Zero(t, p.Debug.Confidence)
	assert.Empty(t, p.Debug.AgentTrace)
}

func TestProjectIsIdempotentAndFresh(t *testing.T) {
	resp := backend.QueryResponse{
		Answer:             "a\nb",
		OnlySourcesVerdict: backend.VerdictPass,
		Citations:          []backend.Citation{cite("x")},
		TimingsMS:          map[string]float64{"t_total_ms": 9},
	}

	first := Project("q", resp)
	second := Project("q", resp)
	assert.Equal(t, first, second)

	first.Sources[0].Title = "mutated"
	first.Debug.AgentTrace[0].LatencyMS = 0
	assert.Equal(t, "Title x", resp.Citations[0].Title)
	assert.Equal(t, "Title x", second.Sources[0].Title)
	assert.Equal(t, 9.0, second.Debug.AgentTrace[0].LatencyMS)
}
