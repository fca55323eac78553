package validator

import (
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/noncemine/shared"
)

// State of the validator in the current round.
type State int

const (
	AwaitingBlock State = iota
	Committed
	Querying
	Resolved
)

func (s State) String() string {
	switch s {
	case AwaitingBlock:
		return "awaiting-block"
	case Committed:
		return "committed"
	case Querying:
		return "querying"
	case Resolved:
		return "resolved"
	}
	return "unknown"
}

// Commitment is the secret the validator committed to for a round.
// The target never changes once committed. Found flips to true at most once.
type Commitment struct {
	RoundID uint64
	Secret  shared.Candidate
	Target  shared.Digest
	Found   bool
}

func (c *Commitment) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddUint64("block", c.RoundID)
	enc.AddString("expected", c.Target.Int().String())
	enc.AddBool("found", c.Found)
	return nil
}

func commit(roundID uint64, secret shared.Candidate) Commitment {
	return Commitment{
		RoundID: roundID,
		Secret:  secret,
		Target:  shared.DigestOf(secret),
	}
}

type round struct {
	Commitment
	state State
}

func restoredRound(c Commitment) round {
	if c.Found {
		return round{Commitment: c, state: Resolved}
	}
	return round{Commitment: c, state: Committed}
}

// needsCommit reports whether a new secret must be drawn for the round id.
func (r round) needsCommit(roundID uint64) bool {
	return r.state == AwaitingBlock || r.RoundID != roundID
}
