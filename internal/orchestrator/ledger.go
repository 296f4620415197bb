package orchestrator

import (
	"strings"
	"sync"

	"github.com/loomhq/loom/pkg/models"
)

// Ledger is the in-memory evidence record of an analysis session:
// observed paths, read paths, per-tool call counts, warnings, and the
// optional file inventory. It lives outside the model's context so the
// synthesis phase and the fallback report generator work from
// deterministic structured data.
type Ledger struct {
	mu sync.Mutex

	projectRoot   string
	observedPaths map[string]bool
	readPaths     map[string]bool
	toolCalls     map[string]int
	warnings      []string
	inventory     *models.FileInventory
}

// NewLedger creates an empty ledger anchored at projectRoot.
func NewLedger(projectRoot string) *Ledger {
	return &Ledger{
		projectRoot:   projectRoot,
		observedPaths: map[string]bool{},
		readPaths:     map[string]bool{},
		toolCalls:     map[string]int{},
	}
}

// ObserveToolCall records a call and every path in its arguments.
func (l *Ledger) ObserveToolCall(call models.ToolCall) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.toolCalls[call.Name]++
	for _, p := range CollectPathArguments(call.Arguments) {
		normalized := NormalizeProjectPath(l.projectRoot, p)
		if isExcludedFromAnalysis(normalized) {
			continue
		}
		l.observedPaths[normalized] = true
		if call.Name == "Read" {
			l.readPaths[normalized] = true
		}
	}
}

// ObserveToolResult records result-derived evidence; successful reads
// confirm the path.
func (l *Ledger) ObserveToolResult(call models.ToolCall, content string, isError bool) {
	if isError || call.Name != "Read" {
		return
	}
	if p, ok := PrimaryPath(call.Arguments); ok {
		l.mu.Lock()
		l.readPaths[NormalizeProjectPath(l.projectRoot, p)] = true
		l.mu.Unlock()
	}
}

// AddWarning appends a diagnostic, masking the project root.
func (l *Ledger) AddWarning(warning string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warnings = append(l.warnings, l.maskRoot(warning))
}

// SetInventory attaches the file inventory collected during discovery.
func (l *Ledger) SetInventory(inv *models.FileInventory) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inventory = inv
}

// Inventory returns the attached inventory, possibly nil.
func (l *Ledger) Inventory() *models.FileInventory {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inventory
}

// ObservedPaths returns a copy of the observed-path set.
func (l *Ledger) ObservedPaths() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool, len(l.observedPaths))
	for p := range l.observedPaths {
		out[p] = true
	}
	return out
}

// ReadPaths returns a copy of the read-path set.
func (l *Ledger) ReadPaths() map[string]bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]bool, len(l.readPaths))
	for p := range l.readPaths {
		out[p] = true
	}
	return out
}

// Warnings returns the accumulated warnings.
func (l *Ledger) Warnings() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.warnings...)
}

// CallCount returns how many times a tool ran.
func (l *Ledger) CallCount(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.toolCalls[tool]
}

// TotalCalls returns the total tool invocations recorded.
func (l *Ledger) TotalCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0
	for _, n := range l.toolCalls {
		total += n
	}
	return total
}

// Coverage derives coverage ratios from the ledger and inventory.
type Coverage struct {
	CoverageRatio     float64 `json:"coverage_ratio"`
	TestCoverageRatio float64 `json:"test_coverage_ratio"`
	SampledReadRatio  float64 `json:"sampled_read_ratio"`
}

// Coverage computes indexed/total, tests-read/tests-total, and
// reads/total from the current ledger state.
func (l *Ledger) Coverage() Coverage {
	l.mu.Lock()
	defer l.mu.Unlock()

	var cov Coverage
	if l.inventory == nil || len(l.inventory.Files) == 0 {
		return cov
	}

	total := len(l.inventory.Files)
	testsTotal := l.inventory.TestFileCount()

	indexed, testsRead := 0, 0
	for _, f := range l.inventory.Files {
		if l.observedPaths[f.Path] {
			indexed++
		}
		if f.IsTest && l.readPaths[f.Path] {
			testsRead++
		}
	}

	cov.CoverageRatio = float64(indexed) / float64(total)
	cov.SampledReadRatio = float64(len(l.readPaths)) / float64(total)
	if testsTotal > 0 {
		cov.TestCoverageRatio = float64(testsRead) / float64(testsTotal)
	}
	return cov
}

// maskRoot replaces the project root with a stable placeholder in any
// warning surfaced outside the process.
func (l *Ledger) maskRoot(s string) string {
	if l.projectRoot == "" {
		return s
	}
	return strings.ReplaceAll(s, strings.TrimRight(l.projectRoot, "/"), "<project_root>")
}

// isExcludedFromAnalysis excludes files under a top-level codex/
// directory; nested paths containing "codex" stay in scope.
func isExcludedFromAnalysis(path string) bool {
	return path == "codex" || strings.HasPrefix(path, "codex/")
}
