// Package miner implements the miner side of the game: an engine searching
// the candidate space and a request handler guarding it.
package miner

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/shared"
)

var ErrWrongMiner = errors.New("challenge addressed to another miner")

var (
	guessesMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "miner",
		Name:      "guesses_total",
		Help:      "Number of guesses sent to validators",
	})

	exhaustedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "miner",
		Name:      "exhausted_rounds_total",
		Help:      "Number of rounds in which the search was given up",
	})

	rejectedMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "miner",
		Name:      "rejected_requests_total",
		Help:      "Number of challenges answered without a guess",
	}, []string{"reason"})
)

type Config struct {
	ExtraAttempts int `long:"extra-attempts" description:"Duplicate draws tolerated on top of the tried candidates before giving up a round"`
}

func DefaultConfig() Config {
	return Config{ExtraAttempts: DefaultExtraAttempts}
}

//go:generate mockgen -package mocks -destination mocks/authorizer.go . Authorizer

// Authorizer decides whether a caller may send challenges.
type Authorizer interface {
	Authorize(ctx context.Context, hotkey string) error
	Priority(ctx context.Context, hotkey string) float64
}

// Miner answers challenges with guesses produced by its engine.
type Miner struct {
	hotkey string
	engine *Engine
	auth   Authorizer
}

func New(hotkey string, engine *Engine, auth Authorizer) *Miner {
	return &Miner{
		hotkey: hotkey,
		engine: engine,
		auth:   auth,
	}
}

func (m *Miner) Hotkey() string {
	return m.hotkey
}

// HandleChallenge checks the caller and answers a challenge with a new guess.
//
// Unauthorized callers are rejected before any search is done.
// Stale or exhausted rounds are answered with the unmodified request.
func (m *Miner) HandleChallenge(ctx context.Context, caller string, ch shared.Challenge) (shared.Response, error) {
	logger := logging.FromContext(ctx).With(zap.String("caller", caller), zap.Uint64("block", ch.RoundID))

	if err := m.auth.Authorize(ctx, caller); err != nil {
		rejectedMetric.WithLabelValues("unauthorized").Inc()
		return shared.Response{}, err
	}
	if ch.Miner != "" && ch.Miner != m.hotkey {
		rejectedMetric.WithLabelValues("wrong_miner").Inc()
		return shared.Response{}, fmt.Errorf("%w: %s", ErrWrongMiner, ch.Miner)
	}
	logger.Debug("prioritizing caller", zap.Float64("priority", m.auth.Priority(ctx, caller)))

	guess, err := m.engine.Guess(ch.RoundID)
	switch {
	case errors.Is(err, ErrSearchExhausted):
		var exhausted *ExhaustedError
		if errors.As(err, &exhausted) {
			logger.Warn("max number of attempts reached for the block", zap.Int("attempts", exhausted.Attempts), zap.Int("tried", exhausted.Tried))
			exhaustedMetric.Inc()
		}
		rejectedMetric.WithLabelValues("exhausted").Inc()
		return ch.Unmodified(), nil
	case errors.Is(err, shared.ErrStaleRound):
		logger.Debug("discarding challenge for a stale block")
		rejectedMetric.WithLabelValues("stale").Inc()
		return ch.Unmodified(), nil
	case err != nil:
		return shared.Response{}, err
	}

	guessesMetric.Inc()
	logger.Info("generated guess", zap.Stringer("candidate", guess.Candidate), zap.Stringer("hash", guess.Digest))
	return shared.Response{RoundID: guess.RoundID, Hash: &guess.Digest}, nil
}
