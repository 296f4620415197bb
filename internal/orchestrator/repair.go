package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/loomhq/loom/internal/providers"
	"github.com/loomhq/loom/pkg/models"
)

// repairToolCall normalises a call before execution: LS gets a default
// path, Read without a file_path is rejected, and absolute paths
// escaping the project root are rejected.
func (o *Orchestrator) repairToolCall(call models.ToolCall) (models.ToolCall, error) {
	if call.Arguments == nil {
		call.Arguments = map[string]any{}
	}

	switch call.Name {
	case "LS":
		if s, _ := call.Arguments["path"].(string); strings.TrimSpace(s) == "" {
			call.Arguments["path"] = "."
		}
	case "Read":
		if s, _ := call.Arguments["file_path"].(string); strings.TrimSpace(s) == "" {
			return call, &providers.CoreError{
				Kind: providers.KindInvalidRequest, Component: "orchestrator",
				Message: "Read requires file_path",
			}
		}
	}

	if o.cfg.ProjectRoot != "" {
		for _, p := range CollectPathArguments(call.Arguments) {
			if !filepath.IsAbs(p) {
				continue
			}
			rel, err := filepath.Rel(o.cfg.ProjectRoot, p)
			if err != nil || strings.HasPrefix(rel, "..") {
				return call, &providers.CoreError{
					Kind: providers.KindInvalidRequest, Component: "orchestrator",
					Message: fmt.Sprintf("path %q is outside the project root", p),
				}
			}
		}
	}

	return call, nil
}

// PrimaryPath extracts the representative path of a call's arguments,
// preferring file_path, then path.
func PrimaryPath(args map[string]any) (string, bool) {
	for _, key := range []string{"file_path", "path"} {
		if s, ok := args[key].(string); ok && strings.TrimSpace(s) != "" {
			return s, true
		}
	}
	return "", false
}

// pathArgumentKeys name arguments whose string values are path-like.
var pathArgumentKeys = map[string]bool{
	"file_path": true, "path": true, "notebook_path": true,
	"directory": true, "dir": true, "cwd": true,
}

// CollectPathArguments gathers every path-like string in the arguments,
// descending into nested objects and arrays.
func CollectPathArguments(args map[string]any) []string {
	var paths []string
	var walk func(key string, value any)
	walk = func(key string, value any) {
		switch v := value.(type) {
		case string:
			if pathArgumentKeys[key] && strings.TrimSpace(v) != "" {
				paths = append(paths, v)
			}
		case map[string]any:
			for k, inner := range v {
				walk(k, inner)
			}
		case []any:
			for _, inner := range v {
				walk(key, inner)
			}
		}
	}
	for k, v := range args {
		walk(k, v)
	}
	return paths
}

// NormalizeProjectPath rewrites a path to project-relative form,
// stripping leading "./" or ".\" markers.
func NormalizeProjectPath(projectRoot, path string) string {
	p := strings.TrimSpace(path)
	if projectRoot != "" && filepath.IsAbs(p) {
		if rel, err := filepath.Rel(projectRoot, p); err == nil && !strings.HasPrefix(rel, "..") {
			p = rel
		}
	}
	for {
		switch {
		case strings.HasPrefix(p, "./"):
			p = p[2:]
		case strings.HasPrefix(p, ".\\"):
			p = p[2:]
		default:
			return p
		}
	}
}

// nonPathSlashTerms are common slash-joined terms that are not paths.
var nonPathSlashTerms = map[string]bool{
	"javascript/typescript": true,
	"desktop/cli":           true,
	"backend/core":          true,
	"client/server":         true,
	"input/output":          true,
	"read/write":            true,
}

// PathIssue flags one suspicious path token in free-form text.
type PathIssue struct {
	Token  string `json:"token"`
	Reason string `json:"reason"`
}

// DetectUnverifiedPaths flags path-like tokens in text that the ledger
// has never observed. A token is path-like when it contains '/' and is
// not: a URL, an uppercase status label (VERIFIED/UNVERIFIED/...), a
// regex fragment, a templating placeholder (${...}), an
// ellipsis-truncation, or a common non-path slash term. Tokens starting
// with an observed directory are accepted even when the full file is not
// yet in the read set.
func DetectUnverifiedPaths(observed map[string]bool, text string) []PathIssue {
	observedDirs := map[string]bool{}
	for p := range observed {
		for dir := filepath.Dir(p); dir != "." && dir != "/" && dir != ""; dir = filepath.Dir(dir) {
			observedDirs[dir] = true
		}
	}

	var issues []PathIssue
	for _, raw := range strings.FieldsFunc(text, func(r rune) bool {
		return r == ' ' || r == '\n' || r == '\t' || r == ',' || r == ';' || r == '(' || r == ')' || r == '"' || r == '\''
	}) {
		token := strings.Trim(raw, ".:`*")
		if !strings.Contains(token, "/") {
			continue
		}
		if isExemptToken(token) {
			continue
		}
		if observed[token] || observed[strings.TrimPrefix(token, "./")] {
			continue
		}
		if hasObservedPrefix(token, observedDirs) {
			continue
		}
		issues = append(issues, PathIssue{Token: token, Reason: "path not observed during analysis"})
	}
	return issues
}

func isExemptToken(token string) bool {
	lower := strings.ToLower(token)

	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return true
	}
	// Uppercase status labels like VERIFIED/UNVERIFIED/CONTRADICTED.
	if token == strings.ToUpper(token) && strings.ContainsAny(token, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		return true
	}
	// Regex fragments.
	if strings.HasPrefix(token, "/") && strings.HasSuffix(token, "/") && len(token) > 1 {
		return true
	}
	if strings.ContainsAny(token, "^$[]") {
		return true
	}
	// Templating placeholders and truncations.
	if strings.Contains(token, "${") {
		return true
	}
	if strings.Contains(token, "...") || strings.Contains(token, "…") {
		return true
	}
	if nonPathSlashTerms[lower] {
		return true
	}
	return false
}

func hasObservedPrefix(token string, observedDirs map[string]bool) bool {
	clean := strings.TrimPrefix(token, "./")
	for dir := range observedDirs {
		if strings.HasPrefix(clean, dir+"/") {
			return true
		}
	}
	return false
}
