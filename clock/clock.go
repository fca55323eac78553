// Package clock provides the block height that delimits rounds.
package clock

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap/zapcore"
)

const DefaultBlockTime = 12 * time.Second

var (
	ErrBeforeGenesis    = errors.New("no blocks before genesis")
	ErrInvalidBlockTime = errors.New("block time must be positive")
)

// Clock reports the current block height. Any increase is a round boundary.
type Clock interface {
	CurrentRound(ctx context.Context) (uint64, error)
}

type BlockConfig struct {
	BlockTime time.Duration `long:"block-time" description:"Time between blocks"`
}

func DefaultBlockConfig() *BlockConfig {
	return &BlockConfig{BlockTime: DefaultBlockTime}
}

// Validate checks that blocks have a positive duration.
func (c *BlockConfig) Validate() error {
	if c.BlockTime <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidBlockTime, c.BlockTime)
	}
	return nil
}

// BlockStart returns the time at which the block with the given height is produced.
func (c *BlockConfig) BlockStart(genesis time.Time, height uint64) time.Time {
	return genesis.Add(c.BlockTime * time.Duration(height))
}

// BlockAt calculates the height of the block produced most recently at a given point in time.
func (c *BlockConfig) BlockAt(genesis, when time.Time) (uint64, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	sinceGenesis := when.Sub(genesis)
	if sinceGenesis < 0 {
		return 0, ErrBeforeGenesis
	}
	return uint64(sinceGenesis / c.BlockTime), nil
}

// implement zap.ObjectMarshaler interface.
func (c BlockConfig) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddDuration("block-time", c.BlockTime)
	return nil
}

// Chain derives the block height from wall-clock time since genesis.
type Chain struct {
	genesis time.Time
	cfg     *BlockConfig
	now     func() time.Time
}

type chainOptionFunc func(*Chain)

// WithNow overrides the source of the current time.
func WithNow(now func() time.Time) chainOptionFunc {
	return func(c *Chain) {
		c.now = now
	}
}

func NewChain(genesis time.Time, cfg *BlockConfig, opts ...chainOptionFunc) *Chain {
	c := &Chain{
		genesis: genesis,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Chain) CurrentRound(ctx context.Context) (uint64, error) {
	return c.cfg.BlockAt(c.genesis, c.now())
}

// Manual is a Clock advanced explicitly.
type Manual struct {
	height atomic.Uint64
}

func NewManual(height uint64) *Manual {
	m := &Manual{}
	m.height.Store(height)
	return m
}

func (m *Manual) CurrentRound(ctx context.Context) (uint64, error) {
	return m.height.Load(), nil
}

// Set moves the clock to the given height.
func (m *Manual) Set(height uint64) {
	m.height.Store(height)
}

// Advance moves the clock one block forward and returns the new height.
func (m *Manual) Advance() uint64 {
	return m.height.Add(1)
}
