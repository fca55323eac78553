package miner

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/spacemeshos/noncemine/shared"
)

// DefaultExtraAttempts is the number of duplicate draws tolerated on top of the
// number of already tried candidates before a round is given up.
const DefaultExtraAttempts = 10

// ErrSearchExhausted is returned when no new candidate could be found within the attempts bound.
// The engine yields no further guesses until the round changes.
var ErrSearchExhausted = errors.New("search space exhausted")

// ExhaustedError is returned by the request that made the engine give up a round.
// It matches ErrSearchExhausted.
type ExhaustedError struct {
	RoundID  uint64
	Attempts int
	Tried    int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%v: block %d, %d attempts, %d tried", ErrSearchExhausted, e.RoundID, e.Attempts, e.Tried)
}

func (e *ExhaustedError) Is(target error) bool {
	return target == ErrSearchExhausted
}

type State int

const (
	StateIdle State = iota
	StateSearching
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSearching:
		return "Searching"
	case StateExhausted:
		return "Exhausted"
	default:
		return "Invalid"
	}
}

// roundState is the search progress within one round.
// The tried set only grows within a round and is dropped on round transition.
type roundState struct {
	id    uint64
	state State
	tried map[shared.Candidate]struct{}
}

// advance returns the state to continue with for a request in round id.
func (r roundState) advance(id uint64) (roundState, error) {
	switch {
	case r.state == StateIdle || id > r.id:
		return roundState{
			id:    id,
			state: StateSearching,
			tried: make(map[shared.Candidate]struct{}),
		}, nil
	case id < r.id:
		return r, shared.ErrStaleRound
	default:
		return r, nil
	}
}

// search draws candidates until one that was not tried before comes up.
// If the number of redraws exceeds len(tried)+extra the round is exhausted.
func (r roundState) search(sample func() shared.Candidate, extra int) (roundState, shared.Candidate, error) {
	if r.state == StateExhausted {
		return r, 0, ErrSearchExhausted
	}
	c := sample()
	attempts := 0
	for r.wasTried(c) {
		c = sample()
		attempts++
		if attempts > len(r.tried)+extra {
			r.state = StateExhausted
			return r, 0, &ExhaustedError{RoundID: r.id, Attempts: attempts, Tried: len(r.tried)}
		}
	}
	r.tried[c] = struct{}{}
	return r, c, nil
}

func (r roundState) wasTried(c shared.Candidate) bool {
	_, ok := r.tried[c]
	return ok
}

// Guess is a new candidate tried by the engine.
type Guess struct {
	RoundID   uint64
	Candidate shared.Candidate
	Digest    shared.Digest
}

// Engine searches the candidate space one guess per request, one round at a time.
type Engine struct {
	sampler       *shared.Sampler
	extraAttempts int

	mu    sync.Mutex
	round roundState
}

func NewEngine(sampler *shared.Sampler, extraAttempts int) *Engine {
	return &Engine{
		sampler:       sampler,
		extraAttempts: extraAttempts,
	}
}

// Guess produces the next guess for the given round.
//
// A round id newer than the last seen one resets the engine.
// It returns shared.ErrStaleRound for rounds older than the last seen one
// and ErrSearchExhausted once the engine gave up on the current round.
func (e *Engine) Guess(roundID uint64) (Guess, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	round, err := e.round.advance(roundID)
	if err != nil {
		return Guess{}, err
	}
	round, c, err := round.search(e.sampler.Sample, e.extraAttempts)
	e.round = round
	if err != nil {
		return Guess{}, err
	}
	return Guess{
		RoundID:   roundID,
		Candidate: c,
		Digest:    shared.DigestOf(c),
	}, nil
}

// State returns the current round id and the state of the search in it.
func (e *Engine) State() (uint64, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.round.id, e.round.state
}

// Tried returns the candidates tried in the current round in ascending order.
func (e *Engine) Tried() []shared.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	tried := make([]shared.Candidate, 0, len(e.round.tried))
	for c := range e.round.tried {
		tried = append(tried, c)
	}
	sort.Slice(tried, func(i, j int) bool { return tried[i] < tried[j] })
	return tried
}
