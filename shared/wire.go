package shared

import (
	"errors"

	"github.com/spacemeshos/go-scale"
)

// ErrStaleRound is returned when a message references a round older than
// the one tracked locally. Such messages are discarded.
var ErrStaleRound = errors.New("stale round")

// maxHotkeyLen bounds the encoded miner identity (hex of an ed25519 key).
const maxHotkeyLen = 128

// Challenge asks a miner for a guess in the given round.
type Challenge struct {
	RoundID uint64 `json:"block_id"`
	// Miner is the hotkey of the addressed miner.
	Miner string `json:"miner,omitempty"`
}

// EncodeScale implements scale.Encodable. The encoding is the signed payload of a challenge.
func (c *Challenge) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeCompact64(enc, c.RoundID)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeStringWithLimit(enc, c.Miner, maxHotkeyLen)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale.Decodable.
func (c *Challenge) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		c.RoundID = field
	}
	{
		field, n, err := scale.DecodeStringWithLimit(dec, maxHotkeyLen)
		if err != nil {
			return total, err
		}
		total += n
		c.Miner = field
	}
	return total, nil
}

// Response is a miner's answer to a challenge.
// A nil Hash means the miner has no new guess for the round.
type Response struct {
	RoundID uint64  `json:"block_id"`
	Hash    *Digest `json:"hash"`
}

// Unmodified returns the response carrying no guess, i.e. the request echoed back.
func (c Challenge) Unmodified() Response {
	return Response{RoundID: c.RoundID}
}

// Answered reports whether the response carries a guess.
func (r Response) Answered() bool {
	return r.Hash != nil
}
