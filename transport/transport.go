// Package transport delivers challenges from a validator to miners and brings back their responses.
package transport

import (
	"context"
	"errors"

	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
)

var (
	// ErrNoResponse is returned when a miner did not answer (unreachable, timed out, unknown).
	ErrNoResponse = errors.New("no response")
	// ErrRejected is returned when a miner refused the challenge.
	ErrRejected = errors.New("challenge rejected")
)

// Handler is the miner side of the transport.
type Handler interface {
	// HandleChallenge answers a challenge sent by the caller (hotkey).
	HandleChallenge(ctx context.Context, caller string, ch shared.Challenge) (shared.Response, error)
}

// Sender is the validator side of the transport.
// It makes exactly one delivery attempt per call.
type Sender interface {
	SendChallenge(ctx context.Context, p registry.Participant, ch shared.Challenge) (shared.Response, error)
}
