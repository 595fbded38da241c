package prompts

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mikan1111/mafuyu/internal/llm"
)

// DefaultPersona is used when no persona file is configured. The real
// persona lives outside the binary so it can be edited without a
// rebuild.
const DefaultPersona = "あなたは真冬です。フランクに話してください。"

// TagInstructions teaches the model the inline tag protocol: private
// reasoning, tool calls, memory writes, and emotion adjustments.
const TagInstructions = `[Response Protocol]
You may use these tags in your response. They are stripped before the user sees anything.
- <thought>...</thought>  Private reasoning. Never shown to the user.
- <call>tool_name: arguments</call>  Invoke a tool. One call per response.
- <memory>fact to remember</memory>  Save a fact about the user for later. Place inside <thought>.
- <emotion>mood+5, affection+2</emotion>  Adjust your emotional state. Place inside <thought>.

Available tools:
%s`

// LoadPersona reads the persona file at path. An empty path or a
// missing file falls back to DefaultPersona.
func LoadPersona(path string) string {
	if path == "" {
		return DefaultPersona
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultPersona
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return DefaultPersona
	}
	return text
}

// LoadFewshot reads example turns from a JSON file. The file holds a
// list of {"role": ..., "content": ...} objects. A missing or
// malformed file yields no examples.
func LoadFewshot(path string) []llm.Message {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var msgs []llm.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil
	}
	return msgs
}

// ToolsSection interpolates the tool catalog into TagInstructions.
func ToolsSection(catalog string) string {
	if catalog == "" {
		catalog = "(none)"
	}
	return fmt.Sprintf(TagInstructions, catalog)
}
