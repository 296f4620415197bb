package fallback

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/loomhq/loom/pkg/models"
)

// BuildToolCallInstructions renders the bilingual prompt block injected
// for providers without a reliable tool channel. It enumerates the tool
// set with parameter descriptions and spells out the reply discipline:
// emit the call, stop, and wait for the real result.
func BuildToolCallInstructions(tools []models.ToolDefinition) string {
	var toolDescriptions strings.Builder

	for _, tool := range tools {
		fmt.Fprintf(&toolDescriptions, "### %s\n%s\n", tool.Name, tool.Description)

		var schema struct {
			Properties map[string]struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			} `json:"properties"`
			Required []string `json:"required"`
		}
		if err := json.Unmarshal(tool.InputSchema, &schema); err == nil && len(schema.Properties) > 0 {
			toolDescriptions.WriteString("Parameters:\n")
			required := map[string]bool{}
			for _, name := range schema.Required {
				required[name] = true
			}
			for name, prop := range schema.Properties {
				marker := " (optional)"
				if required[name] {
					marker = " (required)"
				}
				fmt.Fprintf(&toolDescriptions, "  - `%s` (%s%s): %s\n", name, prop.Type, marker, prop.Description)
			}
		}
		toolDescriptions.WriteString("\n")
	}

	return fmt.Sprintf(`## Tool Calling / 工具调用

You have access to the following tools. To use a tool, output a tool call block in this EXACT format:
请使用以下格式调用工具（必须严格遵守格式）：

`+"```"+`tool_call
{"tool": "ToolName", "arguments": {"param1": "value1", "param2": "value2"}}
`+"```"+`

IMPORTANT / 重要提示:
- The block MUST start with `+"```"+`tool_call and end with `+"```"+` / 代码块必须以 `+"```"+`tool_call 开头，以 `+"```"+` 结尾
- The JSON MUST be valid and on a single line or properly formatted / JSON 必须有效且格式正确
- You can make multiple tool calls in a single response / 可以在一次回复中调用多个工具
- After making tool calls, STOP and WAIT for the actual results before continuing / 调用工具后，必须停下来等待实际结果，然后再继续
- NEVER fabricate, predict, or describe tool results. Do NOT write "调用成功" or "returns..." — only use REAL results provided after tool execution / 绝对不要伪造、预测或描述工具结果。不要写"调用成功"或"返回..."——只使用工具执行后提供的真实结果
- Do NOT describe what you will do — just emit the tool call block / 不要描述你将要做什么——直接输出工具调用代码块
- Only use tools from the list below / 只使用下面列出的工具

## Available Tools / 可用工具

%s## Example Tool Calls / 工具调用示例

读取文件 (Read a file):
`+"```"+`tool_call
{"tool": "Read", "arguments": {"file_path": "src/main.go"}}
`+"```"+`

列出目录内容 (List directory contents):
`+"```"+`tool_call
{"tool": "LS", "arguments": {"path": "."}}
`+"```"+`

运行命令 (Run a command):
`+"```"+`tool_call
{"tool": "Bash", "arguments": {"command": "go test ./..."}}
`+"```"+`

搜索代码 (Search code):
`+"```"+`tool_call
{"tool": "Grep", "arguments": {"pattern": "func main", "path": "cmd/"}}
`+"```"+`

When you receive a tool result, analyze it and decide whether to make more tool calls or provide your final response.
收到工具结果后，分析结果并决定是否需要继续调用工具或给出最终回答。`, toolDescriptions.String())
}
