// Package guardrails validates content crossing the orchestrator's
// boundaries: model input, model output, and tool traffic.
package guardrails

// Direction tells a guardrail where the content sits in the pipeline.
type Direction string

const (
	// DirectionInput validates content before it reaches the model.
	DirectionInput Direction = "input"

	// DirectionOutput validates model output (text or JSON).
	DirectionOutput Direction = "output"

	// DirectionTool validates content around tool execution.
	DirectionTool Direction = "tool"
)

// VerdictKind is the outcome of a validation.
type VerdictKind string

const (
	VerdictPass  VerdictKind = "pass"
	VerdictBlock VerdictKind = "block"
)

// Verdict is a guardrail decision. Reason is set on block.
type Verdict struct {
	Kind   VerdictKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// Pass returns the passing verdict.
func Pass() Verdict { return Verdict{Kind: VerdictPass} }

// Block returns a blocking verdict with the given reason.
func Block(reason string) Verdict { return Verdict{Kind: VerdictBlock, Reason: reason} }

// Guardrail validates content in one of the three directions. A Block
// verdict aborts the surrounding call with the block reason.
type Guardrail interface {
	Name() string
	Description() string
	Validate(content string, direction Direction) Verdict
}
