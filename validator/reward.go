package validator

import (
	"go.uber.org/zap/zapcore"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
)

// Verdict on a single miner's response.
type Verdict int

const (
	NoAnswer Verdict = iota
	Incorrect
	Correct
)

func (v Verdict) String() string {
	switch v {
	case NoAnswer:
		return "no-answer"
	case Incorrect:
		return "incorrect"
	case Correct:
		return "correct"
	}
	return "unknown"
}

// Result of querying one participant.
type Result struct {
	Participant registry.Participant
	Response    shared.Response
	Err         error
	Verdict     Verdict
}

// Judge compares a response with the target committed for the round.
// Failed queries, stale responses and empty answers are NoAnswer.
func Judge(c Commitment, resp shared.Response, err error) Verdict {
	switch {
	case err != nil:
		return NoAnswer
	case resp.RoundID != c.RoundID:
		return NoAnswer
	case !resp.Answered():
		return NoAnswer
	case resp.Hash.Equal(c.Target):
		return Correct
	default:
		return Incorrect
	}
}

// RewardVector maps hotkeys of queried participants to their reward.
type RewardVector map[string]float64

// Hotkeys returns the rewarded hotkeys in a stable order.
func (r RewardVector) Hotkeys() []string {
	keys := maps.Keys(r)
	slices.Sort(keys)
	return keys
}

func (r RewardVector) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	for _, k := range r.Hotkeys() {
		enc.AddFloat64(k, r[k])
	}
	return nil
}

// AssignRewards gives 1.0 to correct guesses and 0.0 to everyone else queried.
func AssignRewards(results []Result) RewardVector {
	rewards := make(RewardVector, len(results))
	for _, r := range results {
		if r.Verdict == Correct {
			rewards[r.Participant.Hotkey] = 1.0
		} else {
			rewards[r.Participant.Hotkey] = 0.0
		}
	}
	return rewards
}
