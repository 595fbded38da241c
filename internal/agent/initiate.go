package agent

import (
	"context"
	"fmt"

	"github.com/mikan1111/mafuyu/internal/emotion"
	"github.com/mikan1111/mafuyu/internal/llm"
	"github.com/mikan1111/mafuyu/internal/prompts"
)

// InitiateTalk lets the agent speak first. It returns an empty string
// when the model has nothing to say; that is not an error. As with
// Respond, a non-empty line alongside a non-nil error means a state
// update failed to persist.
func (s *Session) InitiateTalk(ctx context.Context, userID string) (string, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	log := s.logger.With("user", userID)

	system := prompts.LoadPersona(s.personaFile)
	if s.emotion != nil {
		if state, err := s.emotion.Get(userID); err == nil {
			system += "\n\n" + emotion.PromptText(state)
		}
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: system}}
	messages = append(messages, prompts.LoadFewshot(s.fewshotFile)...)
	messages = append(messages, s.userHistory(userID).recent()...)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompts.InitiatePrompt})

	response, err := s.client.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("initiate: %w", err)
	}

	persistErr := s.applyThought(userID, response, log)

	cleaned := cleanResponse(response)
	if cleaned == "" {
		log.Debug("nothing to say")
		return "", persistErr
	}

	s.userHistory(userID).append(llm.RoleAssistant, cleaned)
	log.Info("initiated talk", "output_len", len(cleaned))
	return cleaned, persistErr
}
