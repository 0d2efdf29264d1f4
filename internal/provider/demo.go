package provider

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/DavidPeterHoward/dynamic-compression-studio-sub004/pkg/models"
)

// The demo providers are deterministic, dependency-free specialists
// used by the CLI and tests to prove the orchestration wiring. Real
// codec and model backends live outside this module, behind the
// Provider interface.

// AnalysisProvider offers the feature-extraction capabilities of the
// compression analysis pipeline.
type AnalysisProvider struct {
	id string
}

// NewAnalysisProvider creates an analysis provider with a generated ID.
func NewAnalysisProvider() *AnalysisProvider {
	return &AnalysisProvider{id: "analysis-" + uuid.New().String()[:8]}
}

func (p *AnalysisProvider) ID() string { return p.id }

func (p *AnalysisProvider) Type() string { return "analyzer" }

func (p *AnalysisProvider) Capabilities() []string {
	return []string{"entropy", "redundancy", "pattern"}
}

func (p *AnalysisProvider) CanHandle(taskType string) bool {
	for _, c := range p.Capabilities() {
		if c == taskType {
			return true
		}
	}
	return false
}

func (p *AnalysisProvider) Heartbeat() models.AgentHealth {
	return models.AgentHealth{Status: models.AgentStatusIdle, Load: -1}
}

func (p *AnalysisProvider) Execute(ctx context.Context, st *models.Subtask) (*models.SubtaskResult, error) {
	data := inputString(st.Input, "data")
	switch st.Type {
	case "entropy":
		return output(st.ID, map[string]any{
			"score": shannonEntropy(data),
			"bytes": len(data),
		}), nil
	case "redundancy":
		return output(st.ID, map[string]any{
			"ratio": redundancyRatio(data),
		}), nil
	case "pattern":
		return output(st.ID, map[string]any{
			"patterns": topDigrams(data, 3),
		}), nil
	default:
		return nil, fmt.Errorf("analysis provider cannot handle %q", st.Type)
	}
}

// RecommendProvider turns extracted features into a codec suggestion.
type RecommendProvider struct {
	id string
}

// NewRecommendProvider creates a recommendation provider with a
// generated ID.
func NewRecommendProvider() *RecommendProvider {
	return &RecommendProvider{id: "recommend-" + uuid.New().String()[:8]}
}

func (p *RecommendProvider) ID() string { return p.id }

func (p *RecommendProvider) Type() string { return "recommender" }

func (p *RecommendProvider) Capabilities() []string { return []string{"recommend"} }

func (p *RecommendProvider) CanHandle(t string) bool { return t == "recommend" }

func (p *RecommendProvider) Heartbeat() models.AgentHealth {
	return models.AgentHealth{Status: models.AgentStatusIdle, Load: -1}
}

func (p *RecommendProvider) Execute(ctx context.Context, st *models.Subtask) (*models.SubtaskResult, error) {
	entropy := inputFloat(st.Input, "entropy_score")
	redundancy := inputFloat(st.Input, "redundancy_ratio")

	// Low entropy or high redundancy favors dictionary coding; near-random
	// payloads are not worth compressing at all.
	algorithm := "huffman"
	switch {
	case entropy > 7.5:
		algorithm = "store"
	case redundancy > 0.5:
		algorithm = "lz77"
	}
	confidence := 1.0 - math.Abs(entropy-4.0)/8.0
	if confidence < 0.1 {
		confidence = 0.1
	}

	return output(st.ID, map[string]any{
		"algorithm":  algorithm,
		"confidence": confidence,
	}), nil
}

// PipelineProvider serves the extract/transform/validate/load stages of
// the data pipeline strategy with deterministic row handling.
type PipelineProvider struct {
	id string
}

// NewPipelineProvider creates a pipeline provider with a generated ID.
func NewPipelineProvider() *PipelineProvider {
	return &PipelineProvider{id: "pipeline-" + uuid.New().String()[:8]}
}

func (p *PipelineProvider) ID() string { return p.id }

func (p *PipelineProvider) Type() string { return "pipeline" }

func (p *PipelineProvider) Capabilities() []string {
	return []string{"extract", "transform", "validate", "load"}
}

func (p *PipelineProvider) CanHandle(taskType string) bool {
	for _, c := range p.Capabilities() {
		if c == taskType {
			return true
		}
	}
	return false
}

func (p *PipelineProvider) Heartbeat() models.AgentHealth {
	return models.AgentHealth{Status: models.AgentStatusIdle, Load: -1}
}

func (p *PipelineProvider) Execute(ctx context.Context, st *models.Subtask) (*models.SubtaskResult, error) {
	switch st.Type {
	case "extract":
		rows := splitRows(inputString(st.Input, "source"))
		return output(st.ID, map[string]any{"rows": rows, "count": len(rows)}), nil
	case "transform":
		rows := inputRows(st.Input)
		out := make([]any, 0, len(rows))
		for _, r := range rows {
			if s, ok := r.(string); ok {
				out = append(out, strings.ToUpper(strings.TrimSpace(s)))
			} else {
				out = append(out, r)
			}
		}
		return output(st.ID, map[string]any{"rows": out}), nil
	case "validate":
		rows := inputRows(st.Input)
		empty := 0
		for _, r := range rows {
			if s, ok := r.(string); ok && s == "" {
				empty++
			}
		}
		return output(st.ID, map[string]any{
			"report": map[string]any{"checked": len(rows), "empty": empty, "valid": empty == 0},
		}), nil
	case "load":
		rows := inputRows(st.Input)
		return output(st.ID, map[string]any{
			"loaded": len(rows),
			"sink":   inputString(st.Input, "sink"),
		}), nil
	default:
		return nil, fmt.Errorf("pipeline provider cannot handle %q", st.Type)
	}
}

// splitRows turns a comma-separated source string into rows. An empty
// source yields a small synthetic dataset so the demo always has data.
func splitRows(source string) []any {
	if source == "" {
		source = "alpha,beta,gamma"
	}
	parts := strings.Split(source, ",")
	rows := make([]any, 0, len(parts))
	for _, p := range parts {
		rows = append(rows, p)
	}
	return rows
}

// inputRows reads the "rows" field, tolerating both []any and typed
// slices left behind by reference resolution.
func inputRows(input map[string]any) []any {
	if rows, ok := input["rows"].([]any); ok {
		return rows
	}
	return nil
}

// EchoProvider returns its input as its output. Its capabilities and
// artificial execution delay are configurable, which makes it the
// workhorse of the wiring tests.
type EchoProvider struct {
	id           string
	capabilities []string
	delay        time.Duration
}

// EchoOption configures an EchoProvider.
type EchoOption func(*EchoProvider)

// WithEchoID overrides the generated agent ID.
func WithEchoID(id string) EchoOption {
	return func(p *EchoProvider) { p.id = id }
}

// WithEchoDelay adds an artificial delay before each execution.
func WithEchoDelay(d time.Duration) EchoOption {
	return func(p *EchoProvider) { p.delay = d }
}

// NewEchoProvider creates an echo provider for the given capabilities.
func NewEchoProvider(capabilities []string, opts ...EchoOption) *EchoProvider {
	p := &EchoProvider{
		id:           "echo-" + uuid.New().String()[:8],
		capabilities: capabilities,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *EchoProvider) ID() string { return p.id }

func (p *EchoProvider) Type() string { return "echo" }

func (p *EchoProvider) Capabilities() []string { return p.capabilities }

func (p *EchoProvider) CanHandle(taskType string) bool {
	for _, c := range p.capabilities {
		if c == taskType {
			return true
		}
	}
	return false
}

func (p *EchoProvider) Heartbeat() models.AgentHealth {
	return models.AgentHealth{Status: models.AgentStatusIdle, Load: -1}
}

func (p *EchoProvider) Execute(ctx context.Context, st *models.Subtask) (*models.SubtaskResult, error) {
	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	out := map[string]any{"echo": st.Type}
	for k, v := range st.Input {
		out[k] = v
	}
	return output(st.ID, out), nil
}

// output wraps a payload in a SubtaskResult.
func output(subtaskID string, payload map[string]any) *models.SubtaskResult {
	return &models.SubtaskResult{
		SubtaskID:   subtaskID,
		Output:      payload,
		CompletedAt: time.Now(),
	}
}

// shannonEntropy returns bits per byte of the payload, 0..8.
func shannonEntropy(data string) float64 {
	if len(data) == 0 {
		return 0
	}
	var freq [256]int
	for i := 0; i < len(data); i++ {
		freq[data[i]]++
	}
	total := float64(len(data))
	entropy := 0.0
	for _, n := range freq {
		if n == 0 {
			continue
		}
		p := float64(n) / total
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// redundancyRatio returns the fraction of bytes that repeat an
// already-seen value.
func redundancyRatio(data string) float64 {
	if len(data) == 0 {
		return 0
	}
	seen := make(map[byte]bool)
	for i := 0; i < len(data); i++ {
		seen[data[i]] = true
	}
	return 1.0 - float64(len(seen))/float64(len(data))
}

// topDigrams returns the n most frequent two-byte sequences.
func topDigrams(data string, n int) []string {
	counts := make(map[string]int)
	for i := 0; i+2 <= len(data); i++ {
		counts[data[i:i+2]]++
	}
	digrams := make([]string, 0, len(counts))
	for d, c := range counts {
		if c > 1 {
			digrams = append(digrams, d)
		}
	}
	sort.Slice(digrams, func(i, j int) bool {
		if counts[digrams[i]] != counts[digrams[j]] {
			return counts[digrams[i]] > counts[digrams[j]]
		}
		return digrams[i] < digrams[j]
	})
	if len(digrams) > n {
		digrams = digrams[:n]
	}
	return digrams
}

// inputString reads a string field from a subtask input.
func inputString(input map[string]any, key string) string {
	if v, ok := input[key].(string); ok {
		return v
	}
	return ""
}

// inputFloat reads a numeric field from a subtask input.
func inputFloat(input map[string]any, key string) float64 {
	switch v := input[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}
