package prompts

import (
	"fmt"
	"strings"
	"time"
)

// EmptyResponseFallback is the user-facing message when the model
// produces nothing usable even after cleanup.
const EmptyResponseFallback = "…えっと、なんだっけ？"

// TimeSection renders the current time for the system prompt.
func TimeSection(now time.Time) string {
	return fmt.Sprintf("[Current Time] %s", now.Format("2006-01-02 15:04 (Monday)"))
}

// UserContextSection identifies the active user. The creator gets a
// dedicated role so the persona treats them accordingly.
func UserContextSection(userID string, creator bool) string {
	if creator {
		return fmt.Sprintf("[Active User Context] Name: %s (Role: Creator/Partner).", userID)
	}
	return fmt.Sprintf("[Active User Context] Name: %s.", userID)
}

// MemorySection formats recalled long-term memories for injection
// alongside the user's message.
func MemorySection(contents []string) string {
	if len(contents) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("【長期記憶 (Memory)】")
	for _, c := range contents {
		b.WriteString("\n- ")
		b.WriteString(c)
	}
	return b.String()
}

// ReflectionPrompt asks the model to judge whether a tool result is
// enough to answer, or whether another tool call is needed.
func ReflectionPrompt(toolResult string) string {
	return fmt.Sprintf(`[Tool Result]
%s

[Reflection]
上記の結果でユーザーの質問に十分答えられるか判断せよ。
- 十分なら、そのまま回答を生成してください（ツール呼び出し不要）。
- 不足なら、追加のツール呼び出しを行ってください。`, toolResult)
}

// CompressionPrompt asks the model to condense dropped history into a
// short summary that survives the context window.
func CompressionPrompt(historyText string) string {
	return fmt.Sprintf(`以下の会話履歴を、重要なポイント（話題、約束、ユーザーの好み等）を抽出して100字以内で要約せよ。

%s

要約:`, historyText)
}

// CompressedHistorySection wraps a summary for the system prompt.
func CompressedHistorySection(summary string) string {
	return fmt.Sprintf("[会話履歴の要約]\n%s", summary)
}

// InitiatePrompt invites the model to speak first. The model is told
// to output nothing when it has nothing to say.
const InitiatePrompt = `今、ユーザーは何も言っていない。
あなた（真冬）から話しかけたいことがあれば、一言だけ言って。
特に何もなければ、何も出力しないで（空欄で）。`
