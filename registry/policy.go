package registry

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
)

// ErrUnauthorized is returned when the caller fails the registry check.
// Requests failing it are rejected before any work is done.
var ErrUnauthorized = errors.New("unauthorized")

//nolint:lll
type Policy struct {
	AllowNonRegistered   bool `long:"allow-non-registered"   description:"Accept challenges from hotkeys that are not in the registry"`
	ForceValidatorPermit bool `long:"force-validator-permit" description:"Accept challenges only from participants holding a validator permit"`
}

// Gate decides whether a caller may send requests and how important its requests are.
type Gate struct {
	reg    Registry
	policy Policy
}

func NewGate(reg Registry, policy Policy) *Gate {
	return &Gate{reg: reg, policy: policy}
}

// Authorize returns nil if the hotkey is allowed to send requests,
// or an error wrapping ErrUnauthorized with the reason.
func (g *Gate) Authorize(ctx context.Context, hotkey string) error {
	logger := logging.FromContext(ctx).With(zap.String("hotkey", hotkey))
	p, err := g.reg.Lookup(ctx, hotkey)
	switch {
	case errors.Is(err, ErrNotRegistered):
		if g.policy.AllowNonRegistered && !g.policy.ForceValidatorPermit {
			logger.Debug("allowing un-registered hotkey")
			return nil
		}
		logger.Debug("blacklisting un-registered hotkey")
		return fmt.Errorf("%w: unrecognized hotkey", ErrUnauthorized)
	case err != nil:
		return fmt.Errorf("looking up caller: %w", err)
	}

	if g.policy.ForceValidatorPermit && !p.ValidatorPermit {
		logger.Warn("blacklisting a request from non-validator hotkey")
		return fmt.Errorf("%w: non-validator hotkey", ErrUnauthorized)
	}
	logger.Debug("hotkey recognized")
	return nil
}

// Priority is the stake of the caller. Unknown callers get 0.
func (g *Gate) Priority(ctx context.Context, hotkey string) float64 {
	p, err := g.reg.Lookup(ctx, hotkey)
	if err != nil {
		return 0
	}
	return p.Stake
}
