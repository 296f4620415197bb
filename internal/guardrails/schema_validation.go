package guardrails

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// SchemaValidationGuardrail validates output-direction JSON against a
// registered schema. Schemas are registered per task type (prd,
// analysis_report, and anything callers add); only the active task
// type's schema is enforced. Non-output directions and the no-active-
// schema state always pass.
type SchemaValidationGuardrail struct {
	mu      sync.RWMutex
	schemas map[string]*jsonschema.Schema
	active  string
}

// NewSchemaValidationGuardrail returns a guardrail with the built-in
// prd and analysis_report schemas registered and no active schema.
func NewSchemaValidationGuardrail() (*SchemaValidationGuardrail, error) {
	g := &SchemaValidationGuardrail{schemas: make(map[string]*jsonschema.Schema)}
	if err := g.RegisterSchema("prd", prdSchema); err != nil {
		return nil, err
	}
	if err := g.RegisterSchema("analysis_report", analysisReportSchema); err != nil {
		return nil, err
	}
	return g, nil
}

// Name implements Guardrail.
func (g *SchemaValidationGuardrail) Name() string { return "SchemaValidation" }

// Description implements Guardrail.
func (g *SchemaValidationGuardrail) Description() string {
	return "validates structured model output against per-task JSON Schemas"
}

// RegisterSchema compiles and stores a schema under a task type.
func (g *SchemaValidationGuardrail) RegisterSchema(taskType, schema string) error {
	compiled, err := jsonschema.CompileString(taskType+".schema.json", schema)
	if err != nil {
		return fmt.Errorf("SchemaValidation: compile %s schema: %w", taskType, err)
	}
	g.mu.Lock()
	g.schemas[taskType] = compiled
	g.mu.Unlock()
	return nil
}

// SetActiveTaskType arms the guardrail for a task type; an empty string
// disarms it.
func (g *SchemaValidationGuardrail) SetActiveTaskType(taskType string) {
	g.mu.Lock()
	g.active = taskType
	g.mu.Unlock()
}

// Validate implements Guardrail. On the output direction with an active
// schema it parses the content as JSON and reports every violation in a
// single block reason.
func (g *SchemaValidationGuardrail) Validate(content string, direction Direction) Verdict {
	if direction != DirectionOutput {
		return Pass()
	}

	g.mu.RLock()
	schema := g.schemas[g.active]
	g.mu.RUnlock()
	if schema == nil {
		return Pass()
	}

	var decoded any
	if err := json.Unmarshal([]byte(content), &decoded); err != nil {
		return Block(fmt.Sprintf("SchemaValidation: output is not valid JSON: %v", err))
	}

	if err := schema.Validate(decoded); err != nil {
		var validationErr *jsonschema.ValidationError
		if ok := asValidationError(err, &validationErr); ok {
			violations := flattenViolations(validationErr)
			return Block("SchemaValidation: " + strings.Join(violations, "; "))
		}
		return Block(fmt.Sprintf("SchemaValidation: %v", err))
	}

	return Pass()
}

func asValidationError(err error, target **jsonschema.ValidationError) bool {
	ve, ok := err.(*jsonschema.ValidationError)
	if ok {
		*target = ve
	}
	return ok
}

// flattenViolations walks the cause tree and returns one human-readable
// line per leaf violation, sorted for stable output.
func flattenViolations(err *jsonschema.ValidationError) []string {
	var leaves []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			location := e.InstanceLocation
			if location == "" {
				location = "/"
			}
			leaves = append(leaves, fmt.Sprintf("%s: %s", location, e.Message))
			return
		}
		for _, cause := range e.Causes {
			walk(cause)
		}
	}
	walk(err)
	sort.Strings(leaves)
	return leaves
}

// prdSchema is the built-in schema for product-requirements documents.
const prdSchema = `{
	"type": "object",
	"required": ["title", "overview", "stories"],
	"properties": {
		"title": {"type": "string", "minLength": 1},
		"overview": {"type": "string", "minLength": 1},
		"stories": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "title", "acceptance_criteria"],
				"properties": {
					"id": {"type": "string", "pattern": "^story-\\d+"},
					"title": {"type": "string", "minLength": 1},
					"priority": {"type": "integer"},
					"acceptance_criteria": {
						"type": "array",
						"items": {"type": "string", "minLength": 1}
					}
				}
			}
		}
	}
}`

// analysisReportSchema is the built-in schema for analysis reports.
const analysisReportSchema = `{
	"type": "object",
	"required": ["project_snapshot", "verified_facts", "architecture"],
	"properties": {
		"project_snapshot": {"type": "string", "minLength": 1},
		"verified_facts": {
			"type": "array",
			"items": {"type": "string", "minLength": 1}
		},
		"architecture": {"type": "string", "minLength": 1},
		"risks": {
			"type": "array",
			"items": {"type": "string"}
		},
		"unknowns": {
			"type": "array",
			"items": {"type": "string"}
		},
		"coverage_ratio": {"type": "number", "minimum": 0}
	}
}`
