package signing

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spacemeshos/go-scale"
)

var (
	ErrSigningFailed    = errors.New("couldn't sign")
	ErrSignatureInvalid = errors.New("signature is invalid")
	ErrInvalidPubkeyLen = errors.New("pubkey has invalid length")
	ErrInvalidHotkey    = errors.New("invalid hotkey")
)

// Signed represents a signed T data.
// It provides a read-only access to it.
type Signed[T any] interface {
	// Data retrieves the underlying data.
	// The received data is READ ONLY.
	Data() *T
	PubKey() ed25519.PublicKey
	Signature() []byte
	// Hotkey is the hex encoded public key of the signer.
	Hotkey() string
}

type signedData[T any] struct {
	data      T
	pubkey    ed25519.PublicKey
	signature []byte
}

func (d *signedData[T]) Data() *T {
	return &d.data
}

func (d *signedData[T]) PubKey() ed25519.PublicKey {
	return d.pubkey
}

func (d *signedData[T]) Signature() []byte {
	return d.signature
}

func (d *signedData[T]) Hotkey() string {
	return Hotkey(d.pubkey)
}

type notHashed struct{}

func (notHashed) HashFunc() crypto.Hash { return crypto.Hash(0) }

type encodable[P any] interface {
	scale.Encodable
	*P
}

func encode[T any, Encodable encodable[T]](data T) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Encodable(&data).EncodeScale(scale.NewEncoder(&buf)); err != nil {
		return nil, fmt.Errorf("failed to serialize data (%w)", err)
	}
	return buf.Bytes(), nil
}

// Sign signs the scale encoding of data with the given ed25519 key.
// *T must implement scale.Encodable which is constrained by Encodable.
func Sign[T any, Encodable encodable[T]](data T, key ed25519.PrivateKey) (Signed[T], error) {
	msg, err := encode[T, Encodable](data)
	if err != nil {
		return nil, err
	}
	signature, err := key.Sign(nil, msg, notHashed{})
	if err != nil {
		return nil, fmt.Errorf("%w (%v)", ErrSigningFailed, err)
	}
	return &signedData[T]{
		data:      data,
		pubkey:    key.Public().(ed25519.PublicKey),
		signature: signature,
	}, nil
}

// Verify constructs Signed[T] from data received together with its signature
// and the signer's hotkey, checking the signature on the way.
func Verify[T any, Encodable encodable[T]](data T, signature []byte, hotkey string) (Signed[T], error) {
	pubkey, err := ParseHotkey(hotkey)
	if err != nil {
		return nil, err
	}
	msg, err := encode[T, Encodable](data)
	if err != nil {
		return nil, err
	}
	if !ed25519.Verify(pubkey, msg, signature) {
		return nil, ErrSignatureInvalid
	}
	return &signedData[T]{
		data:      data,
		pubkey:    pubkey,
		signature: signature,
	}, nil
}

// Hotkey returns the identity of a participant owning the given key.
func Hotkey(pubkey ed25519.PublicKey) string {
	return hex.EncodeToString(pubkey)
}

// ParseHotkey decodes a hotkey into an ed25519 public key.
func ParseHotkey(hotkey string) (ed25519.PublicKey, error) {
	b, err := hex.DecodeString(hotkey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHotkey, err)
	}
	if len(b) != ed25519.PublicKeySize {
		return nil, ErrInvalidPubkeyLen
	}
	return ed25519.PublicKey(b), nil
}
