package validator

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru"
	xdr "github.com/nullstyle/go-xdr/xdr3"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/shared"
)

var ErrNotFound = leveldb.ErrNotFound

const DefaultCacheSize = 16

// commitmentData is the on-disk form of a Commitment.
type commitmentData struct {
	RoundID uint64
	Secret  uint64
	Target  []byte
	Found   bool
}

// Store keeps commitments on disk so that a restarted validator keeps
// the target of the block it was in.
type Store struct {
	db    *leveldb.DB
	cache *lru.Cache
}

func OpenStore(dbPath string, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	db, err := leveldb.OpenFile(dbPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open database @ %s: %w", dbPath, err)
	}
	return &Store{db: db, cache: cache}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// keys are big endian so that iteration order follows round ids.
func roundKey(roundID uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, roundID)
}

func (s *Store) Save(ctx context.Context, c Commitment) error {
	var buf bytes.Buffer
	data := commitmentData{
		RoundID: c.RoundID,
		Secret:  uint64(c.Secret),
		Target:  c.Target[:],
		Found:   c.Found,
	}
	if _, err := xdr.Marshal(&buf, data); err != nil {
		return fmt.Errorf("serialization failure: %v", err)
	}
	if err := s.db.Put(roundKey(c.RoundID), buf.Bytes(), &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("storing commitment in DB: %w", err)
	}
	s.cache.Add(c.RoundID, c)
	logging.FromContext(ctx).Debug("saved commitment", zap.Object("commitment", &c))
	return nil
}

func (s *Store) Get(ctx context.Context, roundID uint64) (Commitment, error) {
	if c, ok := s.cache.Get(roundID); ok {
		// SAFETY: only Commitment values are inserted.
		return c.(Commitment), nil
	}
	data, err := s.db.Get(roundKey(roundID), nil)
	if err != nil {
		return Commitment{}, fmt.Errorf("get commitment for %d from DB: %w", roundID, err)
	}
	c, err := decodeCommitment(data)
	if err != nil {
		return Commitment{}, err
	}
	s.cache.Add(roundID, c)
	return c, nil
}

// Latest returns the commitment with the highest round id.
func (s *Store) Latest(ctx context.Context) (Commitment, error) {
	iter := s.db.NewIterator(nil, nil)
	defer iter.Release()
	if !iter.Last() {
		if err := iter.Error(); err != nil {
			return Commitment{}, fmt.Errorf("iterating commitments: %w", err)
		}
		return Commitment{}, ErrNotFound
	}
	return decodeCommitment(iter.Value())
}

func decodeCommitment(data []byte) (Commitment, error) {
	var d commitmentData
	if _, err := xdr.Unmarshal(bytes.NewReader(data), &d); err != nil {
		return Commitment{}, fmt.Errorf("failed to deserialize: %v", err)
	}
	if len(d.Target) != shared.DigestSize {
		return Commitment{}, errors.New("corrupted commitment: invalid target length")
	}
	c := Commitment{
		RoundID: d.RoundID,
		Secret:  shared.Candidate(d.Secret),
		Found:   d.Found,
	}
	copy(c.Target[:], d.Target)
	return c, nil
}
