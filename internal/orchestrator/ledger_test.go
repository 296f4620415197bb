package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loomhq/loom/pkg/models"
)

func TestLedgerObservesToolCalls(t *testing.T) {
	l := NewLedger("/work/p")

	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "src/a.go"}})
	l.ObserveToolCall(models.ToolCall{Name: "LS", Arguments: map[string]any{"path": "src"}})
	l.ObserveToolCall(models.ToolCall{Name: "Grep", Arguments: map[string]any{"pattern": "x", "path": "src"}})

	assert.True(t, l.ObservedPaths()["src/a.go"])
	assert.True(t, l.ReadPaths()["src/a.go"])
	assert.False(t, l.ReadPaths()["src"])
	assert.Equal(t, 1, l.CallCount("Read"))
	assert.Equal(t, 3, l.TotalCalls())
}

func TestLedgerExcludesTopLevelCodex(t *testing.T) {
	l := NewLedger("")
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "codex/notes.md"}})
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "docs/codex/notes.md"}})

	assert.False(t, l.ObservedPaths()["codex/notes.md"])
	assert.True(t, l.ObservedPaths()["docs/codex/notes.md"])
}

func TestLedgerMasksProjectRootInWarnings(t *testing.T) {
	l := NewLedger("/work/secret-project")
	l.AddWarning("failed to read /work/secret-project/src/a.go")

	warnings := l.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, "failed to read <project_root>/src/a.go", warnings[0])
}

func TestLedgerCoverage(t *testing.T) {
	l := NewLedger("")
	l.SetInventory(&models.FileInventory{Files: []models.FileInventoryItem{
		{Path: "a.go"},
		{Path: "b.go"},
		{Path: "a_test.go", IsTest: true},
		{Path: "c.go"},
	}})

	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a.go"}})
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a_test.go"}})

	cov := l.Coverage()
	assert.InDelta(t, 0.5, cov.CoverageRatio, 1e-9)
	assert.InDelta(t, 0.5, cov.SampledReadRatio, 1e-9)
	assert.InDelta(t, 1.0, cov.TestCoverageRatio, 1e-9)
}

func TestEffectiveTargetsAdaptToRepoSize(t *testing.T) {
	small := EffectiveTargets(nil, 20)
	assert.InDelta(t, 0.8, small.SampledReadRatio, 1e-9)

	large := EffectiveTargets(nil, 2000)
	assert.Equal(t, 200, large.MaxTotalReadFiles)
	assert.InDelta(t, 0.1, large.SampledReadRatio, 1e-9)

	configured := EffectiveTargets(&AnalysisLimits{MaxTotalReadFiles: 500}, 2000)
	assert.Equal(t, 500, configured.MaxTotalReadFiles)
}

func TestQuotaSatisfied(t *testing.T) {
	l := NewLedger("")
	assert.False(t, QuotaSatisfied(PhaseStructureDiscovery, l))

	l.ObserveToolCall(models.ToolCall{Name: "LS", Arguments: map[string]any{"path": "."}})
	l.ObserveToolCall(models.ToolCall{Name: "Glob", Arguments: map[string]any{"pattern": "**/*", "path": "."}})
	l.ObserveToolCall(models.ToolCall{Name: "Grep", Arguments: map[string]any{"pattern": "main", "path": "."}})
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "go.mod"}})
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "main.go"}})

	assert.True(t, QuotaSatisfied(PhaseStructureDiscovery, l))
}

func TestQuotaToleratesMissingSearchWithCoreEvidence(t *testing.T) {
	l := NewLedger("")
	// ConsistencyCheck wants 1 search call, but reads + observed paths
	// count as core evidence.
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "a.go"}})
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "b.go"}})
	l.ObserveToolCall(models.ToolCall{Name: "LS", Arguments: map[string]any{"path": "."}})

	assert.True(t, QuotaSatisfied(PhaseConsistencyCheck, l))
}

func TestFallbackReportSections(t *testing.T) {
	l := NewLedger("/work/p")
	l.ObserveToolCall(models.ToolCall{Name: "Read", Arguments: map[string]any{"file_path": "src/main.go"}})
	l.AddWarning("something odd in /work/p/src")

	report := GenerateFallbackReport(l)
	for _, section := range []string{"Project Snapshot", "Verified Facts", "Architecture", "Risks", "Unknowns"} {
		assert.Contains(t, report, section)
	}
	assert.Contains(t, report, "src/main.go")
	assert.Contains(t, report, "<project_root>/src")
	assert.NotContains(t, report, "/work/p/src")
}

func TestLooksLikeRawPhaseDump(t *testing.T) {
	assert.True(t, LooksLikeRawPhaseDump("StructureDiscovery: found 10 files..."))
	assert.True(t, LooksLikeRawPhaseDump("## Phase 1 output"))
	assert.True(t, LooksLikeRawPhaseDump("Results\nChunk summaries merged\nmore"))
	assert.True(t, LooksLikeRawPhaseDump("   "))
	assert.False(t, LooksLikeRawPhaseDump("# Analysis Report\n\nA healthy report."))
}

func TestBaselineStepsPerPhase(t *testing.T) {
	discovery := BaselineSteps(PhaseStructureDiscovery, "")
	require.NotEmpty(t, discovery)
	assert.Equal(t, "LS", discovery[0].Tool)

	trace := BaselineSteps(PhaseArchitectureTrace, "")
	require.NotEmpty(t, trace)

	assert.Empty(t, BaselineSteps(PhaseSynthesis, ""))
}
