package fallback

import (
	"encoding/json"

	"github.com/loomhq/loom/pkg/models"
)

func sampleToolDefs() []models.ToolDefinition {
	readSchema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"file_path": map[string]any{"type": "string", "description": "path to read"},
		},
		"required": []string{"file_path"},
	})
	lsSchema, _ := json.Marshal(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{"type": "string", "description": "directory to list"},
		},
	})
	return []models.ToolDefinition{
		{Name: "Read", Description: "Read a file", InputSchema: readSchema},
		{Name: "LS", Description: "List a directory", InputSchema: lsSchema},
	}
}
