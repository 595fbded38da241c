// Package emotion tracks per-user emotional state for the agent:
// affection, mood, and energy. Mood drifts back to neutral and energy
// recovers over time; decay is applied lazily whenever a state is read.
package emotion

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Value bounds and baselines.
const (
	AffectionMin = 0
	AffectionMax = 100
	MoodMin      = -50
	MoodMax      = 50
	EnergyMin    = 0
	EnergyMax    = 100

	DefaultAffection = 50
	DefaultMood      = 0
	DefaultEnergy    = 80
)

// Recovery rates in points per elapsed hour. Affection does not decay.
const (
	moodDecayPerHour     = 5
	energyRecoverPerHour = 10
)

// State is a user's emotional state at a point in time.
type State struct {
	UserID      string    `json:"user_id"`
	Affection   int       `json:"affection"`
	Mood        int       `json:"mood"`
	Energy      int       `json:"energy"`
	LastUpdated time.Time `json:"last_updated"`
}

// Delta is a set of adjustments to apply to a state.
type Delta struct {
	Affection int
	Mood      int
	Energy    int
}

// IsZero reports whether the delta changes nothing.
func (d Delta) IsZero() bool {
	return d.Affection == 0 && d.Mood == 0 && d.Energy == 0
}

// defaultState returns the initial state for a user first seen at now.
func defaultState(userID string, now time.Time) State {
	return State{
		UserID:      userID,
		Affection:   DefaultAffection,
		Mood:        DefaultMood,
		Energy:      DefaultEnergy,
		LastUpdated: now,
	}
}

// decayed returns s with time effects applied as of now. Elapsed time
// under one hour leaves the state untouched, so reads in quick
// succession are idempotent. Mood moves toward zero and energy
// recovers toward full; affection persists.
func decayed(s State, now time.Time) State {
	elapsed := now.Sub(s.LastUpdated)
	if elapsed < time.Hour {
		return s
	}
	hours := elapsed.Hours()

	s.Energy = min(EnergyMax, s.Energy+int(hours*energyRecoverPerHour))

	drift := int(hours * moodDecayPerHour)
	switch {
	case s.Mood > 0:
		s.Mood = max(0, s.Mood-drift)
	case s.Mood < 0:
		s.Mood = min(0, s.Mood+drift)
	}

	s.LastUpdated = now
	return s
}

// applyDelta returns s adjusted by d with every value clamped to its
// bounds.
func applyDelta(s State, d Delta, now time.Time) State {
	s.Affection = clamp(s.Affection+d.Affection, AffectionMin, AffectionMax)
	s.Mood = clamp(s.Mood+d.Mood, MoodMin, MoodMax)
	s.Energy = clamp(s.Energy+d.Energy, EnergyMin, EnergyMax)
	s.LastUpdated = now
	return s
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var deltaPattern = regexp.MustCompile(`(?i)(affection|mood|energy)\s*([+-])\s*(\d+)`)

// ParseDeltas extracts adjustments from model output such as
// "mood+5, affection+10". Unrecognized text is ignored.
func ParseDeltas(s string) Delta {
	var d Delta
	for _, m := range deltaPattern.FindAllStringSubmatch(s, -1) {
		v, err := strconv.Atoi(m[3])
		if err != nil {
			continue
		}
		if m[2] == "-" {
			v = -v
		}
		switch strings.ToLower(m[1]) {
		case "affection":
			d.Affection += v
		case "mood":
			d.Mood += v
		case "energy":
			d.Energy += v
		}
	}
	return d
}

// PromptText renders the state as prompt context for the model.
func PromptText(s State) string {
	var affDesc string
	switch {
	case s.Affection >= 90:
		affDesc = "Love (Devoted)"
	case s.Affection >= 70:
		affDesc = "High Trust (Close)"
	case s.Affection >= 40:
		affDesc = "Neutral (Friend)"
	default:
		affDesc = "Low (Stranger/Cold)"
	}

	var moodDesc string
	switch {
	case s.Mood >= 30:
		moodDesc = "Excellent (Happy/Playful)"
	case s.Mood >= 10:
		moodDesc = "Good (Positive)"
	case s.Mood >= -10:
		moodDesc = "Neutral (Calm)"
	case s.Mood >= -30:
		moodDesc = "Bad (Annoyed/Sarcastic)"
	default:
		moodDesc = "Terrible (Angry/Cold)"
	}

	var eneDesc string
	switch {
	case s.Energy >= 80:
		eneDesc = "High (Energetic)"
	case s.Energy >= 30:
		eneDesc = "Normal"
	default:
		eneDesc = "Low (Sleepy/Tired)"
	}

	return fmt.Sprintf(`[Emotional State]
- Affection: %d (%s)
- Mood: %d (%s)
- Energy: %d (%s)
(Instruction: Adjust your tone based on these. Low Mood = Cold/Sarcastic. High Affection = Sweet/Deredere. Low Energy = Short/Lazy.)`,
		s.Affection, affDesc, s.Mood, moodDesc, s.Energy, eneDesc)
}
