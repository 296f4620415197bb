package fallback

import (
	"encoding/json"
	"strings"
)

// parseLenientToolCalls recovers calls from a <tool_call> body that is
// not valid JSON: "ToolName", "ToolName ToolName2", "ToolName {json}",
// "ToolName(args)", GLM-style <arg_key>/<arg_value> pairs, key=value,
// key: value, and degenerate XML forms.
func parseLenientToolCalls(content string) []ParsedToolCall {
	var calls []ParsedToolCall

	for _, tool := range KnownTools {
		if !strings.HasPrefix(content, tool) {
			continue
		}
		rest := strings.TrimSpace(content[len(tool):])

		// Some models stutter the tool name.
		if strings.HasPrefix(rest, tool) {
			rest = strings.TrimSpace(rest[len(tool):])
		}

		// Strip a lone "(id: ...)" annotation.
		if (strings.HasPrefix(rest, "(id:") || strings.HasPrefix(rest, "(id ")) && !strings.Contains(rest, ",") {
			if closeParen := strings.Index(rest, ")"); closeParen >= 0 {
				rest = strings.TrimSpace(rest[closeParen+1:])
			}
		}

		if rest == "" {
			calls = append(calls, ParsedToolCall{
				ToolName:  tool,
				Arguments: map[string]any{},
				RawText:   "<tool_call>" + content + "</tool_call>",
			})
			return calls
		}

		// "LS Cwd" style: a second known tool follows the first.
		if nextTool, nextRest, ok := parseLeadingKnownTool(rest); ok {
			calls = append(calls, ParsedToolCall{
				ToolName:  tool,
				Arguments: map[string]any{},
				RawText:   "<tool_call>" + tool + "</tool_call>",
			})
			args := map[string]any{}
			if nextRest != "" {
				if parsed, ok := parseLenientArguments(nextTool, nextRest); ok {
					args = parsed
				}
			}
			calls = append(calls, ParsedToolCall{
				ToolName:  nextTool,
				Arguments: args,
				RawText:   "<tool_call>" + content + "</tool_call>",
			})
			return calls
		}

		if strings.HasPrefix(rest, "{") {
			args := map[string]any{}
			_ = json.Unmarshal([]byte(rest), &args)
			calls = append(calls, ParsedToolCall{
				ToolName:  tool,
				Arguments: args,
				RawText:   "<tool_call>" + content + "</tool_call>",
			})
			return calls
		}

		if strings.Contains(rest, "</arg_key>") {
			if args := parseXMLArgPairs(rest); len(args) > 0 {
				calls = append(calls, ParsedToolCall{
					ToolName:  tool,
					Arguments: args,
					RawText:   "<tool_call>" + content + "</tool_call>",
				})
				return calls
			}
		}

		// A whitespace-separated list where every word is a known tool.
		words := strings.Fields(content)
		if len(words) > 1 && allKnownTools(words) {
			for _, word := range words {
				calls = append(calls, ParsedToolCall{
					ToolName:  word,
					Arguments: map[string]any{},
					RawText:   "<tool_call>" + word + "</tool_call>",
				})
			}
			return calls
		}

		if open := strings.Index(rest, "("); open >= 0 {
			if closeRel := strings.Index(rest[open:], ")"); closeRel >= 0 {
				inner := strings.Trim(strings.TrimSpace(rest[open+1:open+closeRel]), `"`)
				if inner != "" {
					if args := inferToolArguments(tool, inner); len(args) > 0 {
						calls = append(calls, ParsedToolCall{
							ToolName:  tool,
							Arguments: args,
							RawText:   "<tool_call>" + content + "</tool_call>",
						})
						return calls
					}
				}
			}
		}

		if args, ok := parseEqualsArgs(rest); ok {
			calls = append(calls, ParsedToolCall{ToolName: tool, Arguments: args, RawText: "<tool_call>" + content + "</tool_call>"})
			return calls
		}
		if args, ok := parseColonArgs(rest); ok {
			calls = append(calls, ParsedToolCall{ToolName: tool, Arguments: args, RawText: "<tool_call>" + content + "</tool_call>"})
			return calls
		}
		if args, ok := parseDegenerateXMLArgs(rest); ok {
			calls = append(calls, ParsedToolCall{ToolName: tool, Arguments: args, RawText: "<tool_call>" + content + "</tool_call>"})
			return calls
		}

		// Last resort: synthesise safe defaults for tools that have them.
		var synthesized map[string]any
		switch tool {
		case "Cwd":
			synthesized = map[string]any{}
		case "LS":
			synthesized = map[string]any{"path": "."}
		case "Glob":
			synthesized = map[string]any{"pattern": "**/*", "path": "."}
		}
		if synthesized != nil {
			calls = append(calls, ParsedToolCall{
				ToolName:  tool,
				Arguments: synthesized,
				RawText:   "<tool_call>" + content + "</tool_call>",
			})
		}
		return calls
	}

	return calls
}

func parseLeadingKnownTool(rest string) (string, string, bool) {
	for _, tool := range KnownTools {
		after, ok := strings.CutPrefix(rest, tool)
		if !ok {
			continue
		}
		boundaryOK := after == "" ||
			after[0] == ' ' || after[0] == '\t' || after[0] == '\n' ||
			after[0] == '{' || after[0] == '(' || after[0] == '<'
		if boundaryOK {
			return tool, strings.TrimLeft(after, " \t\n"), true
		}
	}
	return "", "", false
}

func parseLenientArguments(tool, rest string) (map[string]any, bool) {
	if strings.HasPrefix(rest, "{") {
		args := map[string]any{}
		_ = json.Unmarshal([]byte(rest), &args)
		return args, true
	}

	if strings.Contains(rest, "</arg_key>") {
		if args := parseXMLArgPairs(rest); len(args) > 0 {
			return args, true
		}
	}

	if open := strings.Index(rest, "("); open >= 0 {
		if closeRel := strings.Index(rest[open:], ")"); closeRel >= 0 {
			inner := strings.Trim(strings.TrimSpace(rest[open+1:open+closeRel]), `"`)
			if inner != "" {
				if args := inferToolArguments(tool, inner); len(args) > 0 {
					return args, true
				}
			}
		}
	}

	if args, ok := parseEqualsArgs(rest); ok {
		return args, true
	}
	if args, ok := parseColonArgs(rest); ok {
		return args, true
	}
	if args, ok := parseDegenerateXMLArgs(rest); ok {
		return args, true
	}

	return nil, false
}

func allKnownTools(words []string) bool {
	for _, w := range words {
		if !isKnownTool(w) {
			return false
		}
	}
	return true
}
