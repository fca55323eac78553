package shared

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestOfIsDeterministic(t *testing.T) {
	t.Parallel()
	for c := Candidate(0); c < 100; c++ {
		require.Equal(t, DigestOf(c), DigestOf(c))
	}
	require.NotEqual(t, DigestOf(3), DigestOf(7))
}

func TestDigestOfKnownValue(t *testing.T) {
	t.Parallel()
	// sha256("7")
	expected, err := ParseDigest("7902699be42c8a8e46fbbb4501726517e86b22c56a189f7625a6da49081b2451")
	require.NoError(t, err)
	require.Equal(t, expected, DigestOf(7))
}

func TestDigestEqualRejectsSingleBitFlip(t *testing.T) {
	t.Parallel()
	d := DigestOf(7)
	for i := 0; i < DigestSize*8; i++ {
		flipped := d
		flipped[i/8] ^= 1 << (i % 8)
		require.False(t, d.Equal(flipped), "bit %d", i)
	}
	require.True(t, d.Equal(DigestOf(7)))
}

func TestDigestIntRoundTrip(t *testing.T) {
	t.Parallel()
	t.Run("regular digest", func(t *testing.T) {
		t.Parallel()
		d := DigestOf(5)
		back, err := DigestFromInt(d.Int())
		require.NoError(t, err)
		require.Equal(t, d, back)
	})
	t.Run("leading zero bytes are preserved", func(t *testing.T) {
		t.Parallel()
		var d Digest
		d[DigestSize-1] = 0x01
		require.Equal(t, int64(1), d.Int().Int64())
		back, err := DigestFromInt(big.NewInt(1))
		require.NoError(t, err)
		require.Equal(t, d, back)
	})
	t.Run("out of range", func(t *testing.T) {
		t.Parallel()
		_, err := DigestFromInt(big.NewInt(-1))
		require.ErrorIs(t, err, ErrDigestOutOfRange)

		tooBig := new(big.Int).Lsh(big.NewInt(1), DigestSize*8)
		_, err = DigestFromInt(tooBig)
		require.ErrorIs(t, err, ErrDigestOutOfRange)
	})
}

func TestDigestJSON(t *testing.T) {
	t.Parallel()
	d := DigestOf(7)
	data, err := json.Marshal(Response{RoundID: 12, Hash: &d})
	require.NoError(t, err)
	require.Contains(t, string(data), d.Int().String())

	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	require.True(t, resp.Answered())
	require.Equal(t, d, *resp.Hash)
	require.EqualValues(t, 12, resp.RoundID)

	// quoted integers are accepted as well
	var quoted Digest
	require.NoError(t, json.Unmarshal([]byte(`"`+d.Int().String()+`"`), &quoted))
	require.Equal(t, d, quoted)

	// no answer
	resp = Response{}
	require.NoError(t, json.Unmarshal([]byte(`{"block_id": 3, "hash": null}`), &resp))
	require.False(t, resp.Answered())

	require.ErrorIs(t, json.Unmarshal([]byte(`"abc"`), &quoted), ErrInvalidDigest)
}

func TestParseDigest(t *testing.T) {
	t.Parallel()
	_, err := ParseDigest("zz")
	require.ErrorIs(t, err, ErrInvalidDigest)
	_, err = ParseDigest("abcd")
	require.ErrorIs(t, err, ErrInvalidDigest)

	d := DigestOf(1)
	parsed, err := ParseDigest(d.String())
	require.NoError(t, err)
	require.Equal(t, d, parsed)
}
