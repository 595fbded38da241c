package agent

import (
	"github.com/mikan1111/mafuyu/internal/emotion"
)

// Policy decides what a response turn means for long-term state: which
// facts get remembered and how the emotional state shifts. The default
// trusts the model's own tags; alternative policies can score content
// themselves.
type Policy interface {
	// Memorable returns a fact to store from the model's private
	// thought, or ok=false when nothing should be remembered.
	Memorable(thought string) (content string, ok bool)

	// Deltas returns the emotional adjustment expressed in the
	// model's private thought. A zero delta means no change.
	Deltas(thought string) emotion.Delta
}

// TagPolicy reads <memory> and <emotion> tags the model embeds in its
// thought block. This is the default policy.
type TagPolicy struct{}

func (TagPolicy) Memorable(thought string) (string, bool) {
	return parseMemory(thought)
}

func (TagPolicy) Deltas(thought string) emotion.Delta {
	raw, ok := parseEmotion(thought)
	if !ok {
		return emotion.Delta{}
	}
	return emotion.ParseDeltas(raw)
}
