package agent

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Tag grammar for model output. The first <call> match wins; anything
// after it in the same response is ignored.
var (
	callPattern    = regexp.MustCompile(`(?s)<call>(.*?): ?(.*?)</call>`)
	thoughtPattern = regexp.MustCompile(`(?s)<thought>(.*?)</thought>`)
	memoryPattern  = regexp.MustCompile(`(?s)<memory>(.*?)</memory>`)
	emotionPattern = regexp.MustCompile(`(?s)<emotion>(.*?)</emotion>`)
)

// toolCall is a parsed <call> marker.
type toolCall struct {
	Name string
	Args string
}

// parseCall extracts the first tool call marker from model output.
func parseCall(s string) (toolCall, bool) {
	m := callPattern.FindStringSubmatch(s)
	if m == nil {
		return toolCall{}, false
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return toolCall{}, false
	}
	return toolCall{Name: name, Args: strings.TrimSpace(m[2])}, true
}

// parseThought returns the content of the first <thought> block.
func parseThought(s string) (string, bool) {
	m := thoughtPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// parseMemory returns the content of the first <memory> block.
func parseMemory(s string) (string, bool) {
	m := memoryPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	content := strings.TrimSpace(m[1])
	if content == "" {
		return "", false
	}
	return content, true
}

// parseEmotion returns the content of the first <emotion> block.
func parseEmotion(s string) (string, bool) {
	m := emotionPattern.FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// argsFor converts a raw marker argument string into the map the tool
// registry expects. Known tools get their primary parameter; unknown
// tools fall back to JSON, then to a generic "arg".
func argsFor(name, raw string) map[string]string {
	switch name {
	case "search_web":
		return map[string]string{"query": raw}
	case "read_url":
		return map[string]string{"url": raw}
	case "read_file":
		return map[string]string{"path": raw}
	case "write_file":
		if path, content, ok := strings.Cut(raw, ":"); ok {
			return map[string]string{"path": strings.TrimSpace(path), "content": strings.TrimSpace(content)}
		}
		return map[string]string{"path": raw, "content": ""}
	case "list_dir":
		if raw == "" {
			raw = "."
		}
		return map[string]string{"path": raw}
	case "run_python":
		return map[string]string{"code": raw}
	case "recall_memory":
		return map[string]string{"keywords": raw}
	case "delegate_task":
		return map[string]string{"prompt": raw}
	case "delegate_status", "delegate_stop":
		return map[string]string{}
	}

	var parsed map[string]string
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed
	}
	return map[string]string{"arg": raw}
}
