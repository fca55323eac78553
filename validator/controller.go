// Package validator runs the validator side of the game: it commits to a
// secret per block, challenges a sample of miners and rewards the ones that
// guessed the committed target.
package validator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
)

var (
	stepsMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "validator",
		Name:      "steps_total",
		Help:      "Number of steps in which miners were queried",
	})

	verdictsMetric = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "validator",
		Name:      "verdicts_total",
		Help:      "Number of judged miner responses",
	}, []string{"verdict"})

	resolvedMetric = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "noncemine",
		Subsystem: "validator",
		Name:      "resolved_rounds_total",
		Help:      "Number of blocks in which the secret was found",
	})

	queryLatencyMetric = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "noncemine",
		Subsystem: "validator",
		Name:      "query_latency_seconds",
		Help:      "Latency of a single challenge",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
	})
)

//go:generate mockgen -package mocks -destination mocks/mocks.go . RoundClock,Selector,ChallengeSender,ScoreSink

type RoundClock interface {
	CurrentRound(ctx context.Context) (uint64, error)
}

// Selector picks up to k participants to query.
type Selector interface {
	Select(ctx context.Context, k int) ([]registry.Participant, error)
}

type ChallengeSender interface {
	SendChallenge(ctx context.Context, p registry.Participant, ch shared.Challenge) (shared.Response, error)
}

// ScoreSink receives the rewards of every querying step.
type ScoreSink interface {
	UpdateScores(ctx context.Context, roundID uint64, rewards RewardVector) error
}

// CommitmentStore persists commitments across restarts.
// Get and Latest return an error wrapping ErrNotFound when there is no commitment.
type CommitmentStore interface {
	Save(ctx context.Context, c Commitment) error
	Get(ctx context.Context, roundID uint64) (Commitment, error)
	Latest(ctx context.Context) (Commitment, error)
}

// LoggingSink is a ScoreSink writing the rewards to the log.
type LoggingSink struct{}

func (LoggingSink) UpdateScores(ctx context.Context, roundID uint64, rewards RewardVector) error {
	logging.FromContext(ctx).Info("scored responses", zap.Uint64("block", roundID), zap.Object("rewards", rewards))
	return nil
}

//nolint:lll
type Config struct {
	SampleSize           int           `long:"sample-size"            description:"Number of miners queried in every step"`
	QueryTimeout         time.Duration `long:"query-timeout"          description:"Time to wait for a single miner's answer"`
	MaxConcurrentQueries int           `long:"max-concurrent-queries" description:"Upper bound on miners queried at the same time"`
	StepInterval         time.Duration `long:"step-interval"          description:"Interval between steps"`
}

func DefaultConfig() Config {
	return Config{
		SampleSize:           10,
		QueryTimeout:         12 * time.Second,
		MaxConcurrentQueries: 16,
		StepInterval:         5 * time.Second,
	}
}

// Outcome of a querying step.
type Outcome struct {
	RoundID  uint64
	Step     uint64
	Target   shared.Digest
	Results  []Result
	Rewards  RewardVector
	Resolved bool
}

type Controller struct {
	cfg      Config
	sampler  *shared.Sampler
	clock    RoundClock
	selector Selector
	sender   ChallengeSender
	sink     ScoreSink
	store    CommitmentStore

	// serializes steps
	mu    sync.Mutex
	round round
	step  uint64
}

type options struct {
	cfg   Config
	sink  ScoreSink
	store CommitmentStore
}

type Option func(*options)

func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

func WithScoreSink(sink ScoreSink) Option {
	return func(o *options) {
		o.sink = sink
	}
}

// WithCommitmentStore enables persisting commitments.
// The latest stored commitment is restored on creation, and a block
// that already has a stored commitment keeps it.
func WithCommitmentStore(store CommitmentStore) Option {
	return func(o *options) {
		o.store = store
	}
}

func New(
	ctx context.Context,
	sampler *shared.Sampler,
	clock RoundClock,
	selector Selector,
	sender ChallengeSender,
	opts ...Option,
) (*Controller, error) {
	o := options{
		cfg:  DefaultConfig(),
		sink: LoggingSink{},
	}
	for _, opt := range opts {
		opt(&o)
	}

	c := &Controller{
		cfg:      o.cfg,
		sampler:  sampler,
		clock:    clock,
		selector: selector,
		sender:   sender,
		sink:     o.sink,
		store:    o.store,
	}

	if c.store != nil {
		latest, err := c.store.Latest(ctx)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return nil, fmt.Errorf("loading latest commitment: %w", err)
		default:
			c.round = restoredRound(latest)
			logger := logging.FromContext(ctx)
			logger.Info("restored commitment", zap.Object("commitment", &latest))
			if current, err := clock.CurrentRound(ctx); err == nil && current < latest.RoundID {
				logger.Warn(
					"current block is behind the restored commitment, is genesis time configured correctly?",
					zap.Uint64("current", current),
					zap.Uint64("restored", latest.RoundID),
				)
			}
		}
	}
	return c, nil
}

// State returns the current round id and the state of the round.
func (c *Controller) State() (uint64, State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round.RoundID, c.round.state
}

// Run executes steps every StepInterval until the context is canceled.
func (c *Controller) Run(ctx context.Context) error {
	logger := logging.FromContext(ctx).Named("validator")
	ctx = logging.NewContext(ctx, logger)

	interval := c.cfg.StepInterval
	if interval <= 0 {
		interval = DefaultConfig().StepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := c.Step(ctx); err != nil {
			logger.Error("step failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Step runs one validator step.
//
// A new block commits a fresh secret. Once the secret of the block was
// found, steps are no-ops returning a nil Outcome until the block changes.
func (c *Controller) Step(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	roundID, err := c.clock.CurrentRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading current block: %w", err)
	}
	logger := logging.FromContext(ctx).With(zap.Uint64("block", roundID))

	if c.round.needsCommit(roundID) {
		r, err := c.enterRound(ctx, roundID)
		if err != nil {
			return nil, err
		}
		c.round = r
	}
	if c.round.Found {
		logger.Debug("nonce already found, waiting for a new block")
		return nil, nil
	}

	participants, err := c.selector.Select(ctx, c.cfg.SampleSize)
	if err != nil {
		return nil, fmt.Errorf("selecting miners: %w", err)
	}

	c.step++
	stepsMetric.Inc()
	logger.Info("querying miners", zap.Uint64("step", c.step), zap.Int("miners", len(participants)))

	c.round.state = Querying
	results := c.query(ctx, participants)

	outcome := &Outcome{
		RoundID: roundID,
		Step:    c.step,
		Target:  c.round.Target,
		Results: results,
		Rewards: AssignRewards(results),
	}
	for _, r := range results {
		verdictsMetric.WithLabelValues(r.Verdict.String()).Inc()
		if r.Verdict == Correct {
			outcome.Resolved = true
		}
	}

	if outcome.Resolved {
		found := c.round.Commitment
		found.Found = true
		if err := c.persist(ctx, found); err != nil {
			logger.Warn("failed to persist found commitment", zap.Error(err))
		}
		c.round = round{Commitment: found, state: Resolved}
		resolvedMetric.Inc()
		logger.Info("nonce found")
	} else {
		c.round.state = Committed
	}

	if err := c.sink.UpdateScores(ctx, roundID, outcome.Rewards); err != nil {
		return outcome, fmt.Errorf("updating scores: %w", err)
	}
	return outcome, nil
}

// enterRound reuses the stored commitment of the block if there is one.
// Otherwise it commits to a fresh secret.
func (c *Controller) enterRound(ctx context.Context, roundID uint64) (round, error) {
	logger := logging.FromContext(ctx).With(zap.Uint64("block", roundID))
	if c.store != nil {
		stored, err := c.store.Get(ctx, roundID)
		switch {
		case errors.Is(err, ErrNotFound):
		case err != nil:
			return round{}, fmt.Errorf("loading commitment: %w", err)
		default:
			logger.Info("restored commitment", zap.Object("commitment", &stored))
			return restoredRound(stored), nil
		}
	}

	commitment := commit(roundID, c.sampler.Sample())
	if err := c.persist(ctx, commitment); err != nil {
		return round{}, err
	}
	logger.Info("expected nonce", zap.String("expected", commitment.Target.Int().String()))
	return round{Commitment: commitment, state: Committed}, nil
}

func (c *Controller) persist(ctx context.Context, commitment Commitment) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, commitment); err != nil {
		return fmt.Errorf("saving commitment: %w", err)
	}
	return nil
}

// query challenges all participants concurrently and waits for all of them.
func (c *Controller) query(ctx context.Context, participants []registry.Participant) []Result {
	commitment := c.round.Commitment
	results := make([]Result, len(participants))

	var (
		errsMu sync.Mutex
		errs   *multierror.Error
	)
	var eg errgroup.Group
	if c.cfg.MaxConcurrentQueries > 0 {
		eg.SetLimit(c.cfg.MaxConcurrentQueries)
	}
	for i, p := range participants {
		i, p := i, p
		eg.Go(func() error {
			queryCtx, cancel := c.queryContext(ctx)
			defer cancel()

			start := time.Now()
			resp, err := c.sender.SendChallenge(queryCtx, p, shared.Challenge{RoundID: commitment.RoundID, Miner: p.Hotkey})
			queryLatencyMetric.Observe(time.Since(start).Seconds())
			if err != nil {
				errsMu.Lock()
				errs = multierror.Append(errs, fmt.Errorf("querying %s: %w", p.Hotkey, err))
				errsMu.Unlock()
			}
			results[i] = Result{
				Participant: p,
				Response:    resp,
				Err:         err,
				Verdict:     Judge(commitment, resp, err),
			}
			return nil
		})
	}
	_ = eg.Wait()

	logger := logging.FromContext(ctx)
	if err := errs.ErrorOrNil(); err != nil {
		logger.Debug("some miners did not answer", zap.Error(err))
	}
	for _, r := range results {
		logger.Debug("received response",
			zap.String("miner", r.Participant.Hotkey),
			zap.Uint64("response_block", r.Response.RoundID),
			zap.Bool("answered", r.Response.Answered()),
			zap.Stringer("verdict", r.Verdict),
		)
	}
	return results
}

func (c *Controller) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.cfg.QueryTimeout > 0 {
		return context.WithTimeout(ctx, c.cfg.QueryTimeout)
	}
	return context.WithCancel(ctx)
}
