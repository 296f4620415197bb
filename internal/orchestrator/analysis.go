package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/loomhq/loom/pkg/models"
)

// Phase names the analysis pipeline steps, run in order.
type Phase string

const (
	PhaseStructureDiscovery Phase = "StructureDiscovery"
	PhaseArchitectureTrace  Phase = "ArchitectureTrace"
	PhaseConsistencyCheck   Phase = "ConsistencyCheck"
	PhaseSynthesis          Phase = "Synthesis"
)

// AnalysisPhases lists the pipeline in execution order.
var AnalysisPhases = []Phase{
	PhaseStructureDiscovery,
	PhaseArchitectureTrace,
	PhaseConsistencyCheck,
	PhaseSynthesis,
}

// Quota is a phase's minimum evidence requirement. Search calls are
// grep + glob combined. When core evidence exists (non-empty read calls
// plus observed paths), missing search calls are tolerated.
type Quota struct {
	MinTotalCalls  int      `json:"min_total_calls"`
	MinReadCalls   int      `json:"min_read_calls"`
	MinSearchCalls int      `json:"min_search_calls"`
	RequiredTools  []string `json:"required_tools,omitempty"`
}

// minWorkersBeforeEarlyExit prevents a phase from terminating before at
// least this many baseline steps have run.
const minWorkersBeforeEarlyExit = 2

// phaseQuotas is the default quota profile.
var phaseQuotas = map[Phase]Quota{
	PhaseStructureDiscovery: {MinTotalCalls: 5, MinReadCalls: 2, MinSearchCalls: 2, RequiredTools: []string{"LS"}},
	PhaseArchitectureTrace:  {MinTotalCalls: 4, MinReadCalls: 2, MinSearchCalls: 1, RequiredTools: []string{"Read"}},
	PhaseConsistencyCheck:   {MinTotalCalls: 3, MinReadCalls: 1, MinSearchCalls: 1},
	PhaseSynthesis:          {MinTotalCalls: 0},
}

// BaselineStep is one (tool, arguments) pair the scheduler guarantees
// executes even when the model never requests it.
type BaselineStep struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments"`
}

// BaselineSteps seeds a phase's guaranteed steps from project-root
// heuristics: canonical entrypoints per language, common glob patterns,
// and test directories.
func BaselineSteps(phase Phase, projectRoot string) []BaselineStep {
	switch phase {
	case PhaseStructureDiscovery:
		steps := []BaselineStep{
			{Tool: "LS", Arguments: map[string]any{"path": "."}},
			{Tool: "Glob", Arguments: map[string]any{"pattern": "**/*", "path": "."}},
		}
		for _, entry := range canonicalEntrypoints(projectRoot) {
			steps = append(steps, BaselineStep{Tool: "Read", Arguments: map[string]any{"file_path": entry}})
		}
		return steps
	case PhaseArchitectureTrace:
		return []BaselineStep{
			{Tool: "Grep", Arguments: map[string]any{"pattern": "import|require|use ", "path": "."}},
			{Tool: "Glob", Arguments: map[string]any{"pattern": "**/*.{go,rs,py,ts,js}", "path": "."}},
		}
	case PhaseConsistencyCheck:
		return []BaselineStep{
			{Tool: "Glob", Arguments: map[string]any{"pattern": "**/{test,tests,spec}/**", "path": "."}},
			{Tool: "Grep", Arguments: map[string]any{"pattern": "TODO|FIXME", "path": "."}},
		}
	default:
		return nil
	}
}

// canonicalEntrypoints probes for the conventional entry files of the
// ecosystems the analyzer understands.
func canonicalEntrypoints(projectRoot string) []string {
	candidates := []string{
		"src/main.rs", "src/lib.rs", "Cargo.toml",
		"main.py", "setup.py", "pyproject.toml",
		"src/index.ts", "src/index.js", "package.json",
		"main.go", "go.mod",
		"README.md",
	}
	var found []string
	for _, c := range candidates {
		if projectRoot == "" {
			found = append(found, c)
			continue
		}
		if _, err := os.Stat(filepath.Join(projectRoot, c)); err == nil {
			found = append(found, c)
		}
	}
	if len(found) > 4 {
		found = found[:4]
	}
	return found
}

// EffectiveTargets adapts the coverage limits to repo size: small repos
// demand a higher sampled-read ratio; large repos raise the absolute
// read-file cap while relaxing the ratio.
func EffectiveTargets(limits *AnalysisLimits, totalFiles int) AnalysisLimits {
	effective := AnalysisLimits{MaxTotalReadFiles: 50, SampledReadRatio: 0.3}
	if limits != nil {
		if limits.MaxTotalReadFiles > 0 {
			effective.MaxTotalReadFiles = limits.MaxTotalReadFiles
		}
		if limits.SampledReadRatio > 0 {
			effective.SampledReadRatio = limits.SampledReadRatio
		}
	}

	switch {
	case totalFiles > 0 && totalFiles <= 30:
		effective.SampledReadRatio = 0.8
	case totalFiles > 500:
		if raised := totalFiles / 10; raised > effective.MaxTotalReadFiles {
			effective.MaxTotalReadFiles = raised
		}
		effective.SampledReadRatio = 0.1
	}
	return effective
}

// QuotaSatisfied evaluates a phase's quota against the ledger.
func QuotaSatisfied(phase Phase, ledger *Ledger) bool {
	quota := phaseQuotas[phase]

	searchCalls := ledger.CallCount("Grep") + ledger.CallCount("Glob")
	readCalls := ledger.CallCount("Read")
	coreEvidence := readCalls > 0 && len(ledger.ObservedPaths()) > 0

	if ledger.TotalCalls() < quota.MinTotalCalls {
		return false
	}
	if readCalls < quota.MinReadCalls {
		return false
	}
	if searchCalls < quota.MinSearchCalls && !coreEvidence {
		return false
	}
	for _, tool := range quota.RequiredTools {
		if ledger.CallCount(tool) == 0 {
			return false
		}
	}
	return true
}

// AnalysisResult is the outcome of a full analysis session.
type AnalysisResult struct {
	Report       string            `json:"report"`
	UsedFallback bool              `json:"used_fallback"`
	Coverage     Coverage          `json:"coverage"`
	Usage        models.UsageStats `json:"usage"`
	Warnings     []string          `json:"warnings,omitempty"`
}

// RunAnalysis executes the phase pipeline: baseline steps run first so
// quotas can be met even when the model requests nothing; then the model
// drives each phase through the turn loop; synthesis produces the
// report, replaced by the deterministic generator when the model output
// trips the raw-dump heuristics or the budget fires.
func (o *Orchestrator) RunAnalysis(ctx context.Context, sender models.StreamSender) (*AnalysisResult, error) {
	result := &AnalysisResult{}

	for _, phase := range AnalysisPhases {
		if err := ctx.Err(); err != nil {
			result.Report = GenerateFallbackReport(o.ledger)
			result.UsedFallback = true
			break
		}

		if phase == PhaseSynthesis {
			run, err := o.Run(ctx, synthesisPrompt(o.ledger), sender)
			if err != nil {
				return nil, err
			}
			result.Usage.Merge(run.Usage)

			switch {
			case run.StopCause == StopBudgetExceeded,
				run.StopCause == StopError,
				LooksLikeRawPhaseDump(run.Content):
				result.Report = GenerateFallbackReport(o.ledger)
				result.UsedFallback = true
			default:
				result.Report = run.Content
			}
			break
		}

		// Baseline steps execute unconditionally, before any early exit
		// is considered.
		executed := 0
		for _, step := range BaselineSteps(phase, o.cfg.ProjectRoot) {
			call := models.ToolCall{
				ID:        fmt.Sprintf("baseline_%s_%d", phase, executed),
				Name:      step.Tool,
				Arguments: step.Arguments,
			}
			o.executeToolCall(ctx, call)
			executed++
		}

		run, err := o.Run(ctx, phasePrompt(phase), sender)
		if err != nil {
			return nil, err
		}
		result.Usage.Merge(run.Usage)

		if executed >= minWorkersBeforeEarlyExit && QuotaSatisfied(phase, o.ledger) {
			continue
		}
		if !QuotaSatisfied(phase, o.ledger) {
			o.ledger.AddWarning(fmt.Sprintf("phase %s ended below quota", phase))
		}
	}

	result.Coverage = o.ledger.Coverage()
	result.Warnings = o.ledger.Warnings()
	return result, nil
}

func phasePrompt(phase Phase) string {
	switch phase {
	case PhaseStructureDiscovery:
		return "Survey the repository structure. List the top-level layout, identify the languages and build files, and read the canonical entry points. Use LS, Glob, and Read."
	case PhaseArchitectureTrace:
		return "Trace the architecture: follow imports from the entry points, identify the main components and how they depend on each other. Use Read and Grep."
	case PhaseConsistencyCheck:
		return "Cross-check what you have read: verify that the described components exist, look at tests for behaviour evidence, and note contradictions."
	default:
		return ""
	}
}

func synthesisPrompt(ledger *Ledger) string {
	return fmt.Sprintf(
		"Write the final analysis report with sections: Project Snapshot, Verified Facts, Architecture, Risks, Unknowns. "+
			"Base every claim on the %d files you observed and the %d files you read. Do not mention files you have not seen.",
		len(ledger.ObservedPaths()), len(ledger.ReadPaths()))
}
