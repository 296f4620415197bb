// Package orchestrator drives multi-step tool-using conversations: it
// composes provider requests, drains unified event streams, extracts and
// executes tool calls (native or parsed from text), enforces budgets and
// guardrails, and layers the analysis phase scheduler on top of the
// turn loop.
package orchestrator

import (
	"github.com/loomhq/loom/pkg/models"
)

// Config configures one orchestrator instance.
type Config struct {
	// Provider is the chat-completion backend configuration.
	Provider models.ProviderConfig `json:"provider" yaml:"provider"`

	// SystemPrompt is prepended to every turn; fallback tool-call
	// instructions are appended to it when the provider needs them.
	SystemPrompt string `json:"system_prompt,omitempty" yaml:"system_prompt,omitempty"`

	// MaxIterations bounds the number of turns. Default: 10.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`

	// MaxTotalTokens bounds cumulative usage across turns. 0 = unlimited.
	MaxTotalTokens int `json:"max_total_tokens,omitempty" yaml:"max_total_tokens,omitempty"`

	// ProjectRoot anchors path discipline for tool calls.
	ProjectRoot string `json:"project_root,omitempty" yaml:"project_root,omitempty"`

	// Streaming selects stream_message over send_message.
	Streaming bool `json:"streaming,omitempty" yaml:"streaming,omitempty"`

	// EnableCompaction summarises evicted history when the conversation
	// outgrows the context window.
	EnableCompaction bool `json:"enable_compaction,omitempty" yaml:"enable_compaction,omitempty"`

	// AnalysisArtifactsRoot is where analysis sessions persist reports.
	AnalysisArtifactsRoot string `json:"analysis_artifacts_root,omitempty" yaml:"analysis_artifacts_root,omitempty"`

	// AnalysisProfile selects the analysis quota profile.
	AnalysisProfile string `json:"analysis_profile,omitempty" yaml:"analysis_profile,omitempty"`

	// AnalysisLimits overrides the adaptive coverage targets.
	AnalysisLimits *AnalysisLimits `json:"analysis_limits,omitempty" yaml:"analysis_limits,omitempty"`

	// SessionID identifies this conversation for artifact scoping.
	SessionID string `json:"session_id,omitempty" yaml:"session_id,omitempty"`
}

// AnalysisLimits caps analysis coverage work.
type AnalysisLimits struct {
	MaxTotalReadFiles int     `json:"max_total_read_files,omitempty" yaml:"max_total_read_files,omitempty"`
	SampledReadRatio  float64 `json:"sampled_read_ratio,omitempty" yaml:"sampled_read_ratio,omitempty"`
}

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	return c
}

// StopCause reports why a run ended.
type StopCause string

const (
	StopCompleted      StopCause = "completed"
	StopBudgetExceeded StopCause = "budget_exceeded"
	StopIterationLimit StopCause = "iteration_limit"
	StopCancelled      StopCause = "cancelled"
	StopError          StopCause = "error"
)

// RunResult is the terminal outcome of one turn-loop invocation. Usage
// accumulated before a failure is always preserved.
type RunResult struct {
	Success    bool              `json:"success"`
	Content    string            `json:"content,omitempty"`
	Thinking   string            `json:"thinking,omitempty"`
	Usage      models.UsageStats `json:"usage"`
	StopCause  StopCause         `json:"stop_cause"`
	Error      string            `json:"error,omitempty"`
	Iterations int               `json:"iterations"`
	History    []models.Message  `json:"history,omitempty"`
}
