package validator_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spacemeshos/noncemine/clock"
	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/miner"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/shared/sharedtest"
	"github.com/spacemeshos/noncemine/transport"
	"github.com/spacemeshos/noncemine/validator"
	"github.com/spacemeshos/noncemine/validator/mocks"
)

type network struct {
	clock      *clock.Manual
	controller *validator.Controller
	sink       *mocks.MockScoreSink
	draws      map[string]*sharedtest.SequenceSource
}

// newNetwork runs a validator whose secrets are drawn from secrets
// against in-process miners drawing the given candidates.
// An "offline" participant is registered but never answers.
func newNetwork(t *testing.T, secrets []int64, miners map[string][]int64) *network {
	t.Helper()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))

	reg := registry.Static{{UID: 0, Hotkey: "validator", Address: "local", Stake: 5000, ValidatorPermit: true}}
	tr := transport.NewInMemory("validator")
	gate := registry.NewGate(&reg, registry.Policy{})
	draws := make(map[string]*sharedtest.SequenceSource)
	uid := 1
	for hotkey, values := range miners {
		src := sharedtest.NewSequenceSource(values...)
		draws[hotkey] = src
		engine := miner.NewEngine(shared.NewSampler(10, src), miner.DefaultExtraAttempts)
		tr.Register(hotkey, miner.New(hotkey, engine, gate))
		reg = append(reg, registry.Participant{UID: uid, Hotkey: hotkey, Address: "local"})
		uid++
	}
	reg = append(reg, registry.Participant{UID: uid, Hotkey: "offline", Address: "local"})

	clk := clock.NewManual(1)
	sink := mocks.NewMockScoreSink(gomock.NewController(t))
	controller, err := validator.New(
		ctx,
		shared.NewSampler(10, sharedtest.NewSequenceSource(secrets...)),
		clk,
		registry.NewRandomSelector(&reg, "validator", registry.DefaultVpermitStakeLimit, nil),
		tr,
		validator.WithScoreSink(sink),
	)
	require.NoError(t, err)
	return &network{clock: clk, controller: controller, sink: sink, draws: draws}
}

func TestController_FindsSecret(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	nw := newNetwork(t, []int64{7}, map[string][]int64{
		"lucky":   {3, 7},
		"unlucky": {0, 1, 2},
	})

	// first guess of the lucky miner (3) is rejected
	nw.sink.EXPECT().UpdateScores(gomock.Any(), uint64(1), validator.RewardVector{"lucky": 0, "unlucky": 0, "offline": 0})
	outcome, err := nw.controller.Step(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.False(t, outcome.Resolved)
	require.Equal(t, shared.DigestOf(7), outcome.Target)
	require.EqualValues(t, 1, outcome.Step)
	_, state := nw.controller.State()
	require.Equal(t, validator.Committed, state)

	verdicts := make(map[string]validator.Verdict)
	for _, r := range outcome.Results {
		verdicts[r.Participant.Hotkey] = r.Verdict
	}
	require.Equal(t, map[string]validator.Verdict{
		"lucky":   validator.Incorrect,
		"unlucky": validator.Incorrect,
		"offline": validator.NoAnswer,
	}, verdicts)

	// second guess (7) is accepted
	nw.sink.EXPECT().UpdateScores(gomock.Any(), uint64(1), validator.RewardVector{"lucky": 1, "unlucky": 0, "offline": 0})
	outcome, err = nw.controller.Step(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Resolved)
	require.EqualValues(t, 2, outcome.Step)
	_, state = nw.controller.State()
	require.Equal(t, validator.Resolved, state)

	// found: no more queries in this block
	calls := nw.draws["lucky"].Calls()
	outcome, err = nw.controller.Step(ctx)
	require.NoError(t, err)
	require.Nil(t, outcome)
	require.Equal(t, calls, nw.draws["lucky"].Calls())
}

func TestController_ResetsOnNewBlock(t *testing.T) {
	t.Parallel()
	ctx := logging.NewContext(context.Background(), zaptest.NewLogger(t))
	nw := newNetwork(t, []int64{7, 2}, map[string][]int64{"lucky": {7, 2}})

	nw.sink.EXPECT().UpdateScores(gomock.Any(), uint64(1), validator.RewardVector{"lucky": 1, "offline": 0})
	outcome, err := nw.controller.Step(ctx)
	require.NoError(t, err)
	require.True(t, outcome.Resolved)

	outcome, err = nw.controller.Step(ctx)
	require.NoError(t, err)
	require.Nil(t, outcome)

	// new block: new secret (2), found is cleared and the miner starts over
	nw.clock.Advance()
	nw.sink.EXPECT().UpdateScores(gomock.Any(), uint64(2), validator.RewardVector{"lucky": 1, "offline": 0})
	outcome, err = nw.controller.Step(ctx)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.EqualValues(t, 2, outcome.RoundID)
	require.Equal(t, shared.DigestOf(2), outcome.Target)
	require.True(t, outcome.Resolved)
}

func newMockedController(t *testing.T, opts ...validator.Option) (*validator.Controller, *mocks.MockRoundClock, *mocks.MockSelector, *mocks.MockChallengeSender) {
	t.Helper()
	ctrl := gomock.NewController(t)
	clk := mocks.NewMockRoundClock(ctrl)
	selector := mocks.NewMockSelector(ctrl)
	sender := mocks.NewMockChallengeSender(ctrl)
	c, err := validator.New(
		context.Background(),
		shared.NewSampler(10, sharedtest.NewSequenceSource(7)),
		clk,
		selector,
		sender,
		opts...,
	)
	require.NoError(t, err)
	return c, clk, selector, sender
}

func TestController_StaleResponseIsNoAnswer(t *testing.T) {
	t.Parallel()
	c, clk, selector, sender := newMockedController(t)
	target := shared.DigestOf(7)
	miner := registry.Participant{Hotkey: "miner", Address: "local"}

	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(5), nil)
	selector.EXPECT().Select(gomock.Any(), validator.DefaultConfig().SampleSize).Return([]registry.Participant{miner}, nil)
	sender.EXPECT().SendChallenge(gomock.Any(), miner, shared.Challenge{RoundID: 5, Miner: "miner"}).
		Return(shared.Response{RoundID: 4, Hash: &target}, nil)

	outcome, err := c.Step(context.Background())
	require.NoError(t, err)
	require.False(t, outcome.Resolved)
	require.Equal(t, validator.NoAnswer, outcome.Results[0].Verdict)
	require.Equal(t, validator.RewardVector{"miner": 0}, outcome.Rewards)
}

func TestController_QueryTimeout(t *testing.T) {
	t.Parallel()
	cfg := validator.DefaultConfig()
	cfg.QueryTimeout = 10 * time.Millisecond
	c, clk, selector, sender := newMockedController(t, validator.WithConfig(cfg))
	slow := registry.Participant{Hotkey: "slow", Address: "local"}

	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(5), nil)
	selector.EXPECT().Select(gomock.Any(), cfg.SampleSize).Return([]registry.Participant{slow}, nil)
	sender.EXPECT().SendChallenge(gomock.Any(), slow, gomock.Any()).DoAndReturn(
		func(ctx context.Context, _ registry.Participant, _ shared.Challenge) (shared.Response, error) {
			<-ctx.Done()
			return shared.Response{}, ctx.Err()
		})

	outcome, err := c.Step(context.Background())
	require.NoError(t, err)
	require.Equal(t, validator.NoAnswer, outcome.Results[0].Verdict)
	require.ErrorIs(t, outcome.Results[0].Err, context.DeadlineExceeded)
}

func TestController_BoundsConcurrentQueries(t *testing.T) {
	t.Parallel()
	cfg := validator.DefaultConfig()
	cfg.MaxConcurrentQueries = 2
	c, clk, selector, sender := newMockedController(t, validator.WithConfig(cfg))

	participants := make([]registry.Participant, 8)
	for i := range participants {
		participants[i] = registry.Participant{UID: i, Hotkey: string(rune('a' + i)), Address: "local"}
	}
	var inFlight, maxInFlight atomic.Int32
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(1), nil)
	selector.EXPECT().Select(gomock.Any(), cfg.SampleSize).Return(participants, nil)
	sender.EXPECT().SendChallenge(gomock.Any(), gomock.Any(), gomock.Any()).Times(len(participants)).DoAndReturn(
		func(_ context.Context, _ registry.Participant, ch shared.Challenge) (shared.Response, error) {
			n := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				current := maxInFlight.Load()
				if n <= current || maxInFlight.CompareAndSwap(current, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			return ch.Unmodified(), nil
		})

	outcome, err := c.Step(context.Background())
	require.NoError(t, err)
	require.Len(t, outcome.Results, len(participants))
	require.LessOrEqual(t, maxInFlight.Load(), int32(2))
	for i, r := range outcome.Results {
		require.Equal(t, participants[i], r.Participant)
	}
}

func TestController_ClockFailure(t *testing.T) {
	t.Parallel()
	c, clk, _, _ := newMockedController(t)
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(0), clock.ErrBeforeGenesis)
	_, err := c.Step(context.Background())
	require.ErrorIs(t, err, clock.ErrBeforeGenesis)
	_, state := c.State()
	require.Equal(t, validator.AwaitingBlock, state)
}

func TestController_ScoreSinkFailure(t *testing.T) {
	t.Parallel()
	sink := mocks.NewMockScoreSink(gomock.NewController(t))
	c, clk, selector, _ := newMockedController(t, validator.WithScoreSink(sink))
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(1), nil)
	selector.EXPECT().Select(gomock.Any(), gomock.Any()).Return(nil, nil)
	sinkErr := errors.New("chain unavailable")
	sink.EXPECT().UpdateScores(gomock.Any(), uint64(1), validator.RewardVector{}).Return(sinkErr)

	outcome, err := c.Step(context.Background())
	require.ErrorIs(t, err, sinkErr)
	require.NotNil(t, outcome)
}

func TestController_KeepsCommitmentAcrossRestart(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := validator.OpenStore(filepath.Join(t.TempDir(), "commitments"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })

	ctrl := gomock.NewController(t)
	clk := mocks.NewMockRoundClock(ctrl)
	selector := mocks.NewMockSelector(ctrl)
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(9), nil).AnyTimes()
	selector.EXPECT().Select(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	first, err := validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(7)), clk, selector, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)
	outcome, err := first.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, shared.DigestOf(7), outcome.Target)

	// a restarted validator in the same block keeps the target
	second, err := validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(1)), clk, selector, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)
	id, state := second.State()
	require.EqualValues(t, 9, id)
	require.Equal(t, validator.Committed, state)
	outcome, err = second.Step(ctx)
	require.NoError(t, err)
	require.Equal(t, shared.DigestOf(7), outcome.Target)
}

func TestController_KeepsTargetOfStoredRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := validator.OpenStore(filepath.Join(t.TempDir(), "commitments"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: 3, Secret: 7, Target: shared.DigestOf(7)}))
	require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: 5, Secret: 2, Target: shared.DigestOf(2)}))

	ctrl := gomock.NewController(t)
	clk := mocks.NewMockRoundClock(ctrl)
	selector := mocks.NewMockSelector(ctrl)
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(3), nil).AnyTimes()
	selector.EXPECT().Select(gomock.Any(), gomock.Any()).Return(nil, nil)

	c, err := validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(1)), clk, selector, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)
	id, _ := c.State()
	require.EqualValues(t, 5, id)

	outcome, err := c.Step(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, outcome.RoundID)
	require.Equal(t, shared.DigestOf(7), outcome.Target)

	stored, err := store.Get(ctx, 3)
	require.NoError(t, err)
	require.Equal(t, shared.DigestOf(7), stored.Target)
	require.EqualValues(t, 7, stored.Secret)
	stored, err = store.Get(ctx, 5)
	require.NoError(t, err)
	require.Equal(t, shared.DigestOf(2), stored.Target)
}

func TestController_KeepsFoundFlagOfStoredRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := validator.OpenStore(filepath.Join(t.TempDir(), "commitments"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: 3, Secret: 7, Target: shared.DigestOf(7), Found: true}))
	require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: 5, Secret: 2, Target: shared.DigestOf(2)}))

	clk := mocks.NewMockRoundClock(gomock.NewController(t))
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(3), nil).AnyTimes()

	c, err := validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(1)), clk, nil, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)
	outcome, err := c.Step(ctx)
	require.NoError(t, err)
	require.Nil(t, outcome)
	id, state := c.State()
	require.EqualValues(t, 3, id)
	require.Equal(t, validator.Resolved, state)
}

func TestController_WarnsWhenBlockIsBehindRestoredCommitment(t *testing.T) {
	t.Parallel()
	store, err := validator.OpenStore(filepath.Join(t.TempDir(), "commitments"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	require.NoError(t, store.Save(context.Background(), validator.Commitment{RoundID: 100, Secret: 2, Target: shared.DigestOf(2)}))

	core, logs := observer.New(zap.WarnLevel)
	ctx := logging.NewContext(context.Background(), zap.New(core))

	clk := mocks.NewMockRoundClock(gomock.NewController(t))
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(4), nil)
	_, err = validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(1)), clk, nil, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)

	warnings := logs.TakeAll()
	require.Len(t, warnings, 1)
	require.EqualValues(t, 4, warnings[0].ContextMap()["current"])
	require.EqualValues(t, 100, warnings[0].ContextMap()["restored"])
}

func TestController_RestoresResolvedRound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store, err := validator.OpenStore(filepath.Join(t.TempDir(), "commitments"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, store.Close()) })
	require.NoError(t, store.Save(ctx, validator.Commitment{RoundID: 3, Secret: 7, Target: shared.DigestOf(7), Found: true}))

	clk := mocks.NewMockRoundClock(gomock.NewController(t))
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(3), nil).Times(2)
	c, err := validator.New(ctx, shared.NewSampler(10, sharedtest.NewSequenceSource(1)), clk, nil, nil, validator.WithCommitmentStore(store))
	require.NoError(t, err)

	outcome, err := c.Step(ctx)
	require.NoError(t, err)
	require.Nil(t, outcome)
}

func TestController_RunStopsOnCancel(t *testing.T) {
	t.Parallel()
	cfg := validator.DefaultConfig()
	cfg.StepInterval = time.Millisecond
	c, clk, selector, _ := newMockedController(t, validator.WithConfig(cfg))
	clk.EXPECT().CurrentRound(gomock.Any()).Return(uint64(1), nil).AnyTimes()
	selector.EXPECT().Select(gomock.Any(), gomock.Any()).Return(nil, nil).AnyTimes()

	ctx, cancel := context.WithTimeout(logging.NewContext(context.Background(), zaptest.NewLogger(t)), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))
}
