package server

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	xdr "github.com/nullstyle/go-xdr/xdr3"
	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/signing"
)

const stateFilename = "state.bin"

type state struct {
	PrivKey []byte
}

func saveState(datadir string, s *state) error {
	var w bytes.Buffer
	if _, err := xdr.Marshal(&w, s); err != nil {
		return fmt.Errorf("serializing: %w", err)
	}
	if err := atomic.WriteFile(filepath.Join(datadir, stateFilename), &w); err != nil {
		return fmt.Errorf("writing to disk: %w", err)
	}
	return nil
}

// loadState reads the persisted state or creates a new one.
// A key passed in keyFromEnv takes priority over generating a new one
// but must match the persisted key, if any.
func loadState(ctx context.Context, datadir, keyFromEnv string) (*state, error) {
	logger := logging.FromContext(ctx)
	var envKey ed25519.PrivateKey
	if keyFromEnv != "" {
		key, err := signing.DecodePrivateKey(keyFromEnv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", signing.KeyEnvVar, err)
		}
		envKey = key
	}

	data, err := os.ReadFile(filepath.Join(datadir, stateFilename)) //#nosec G304
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if envKey != nil {
			logger.Info("using private key from environment")
			return &state{PrivKey: envKey}, nil
		}
		logger.Info("generating new private key")
		_, key, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("generating private key: %w", err)
		}
		return &state{PrivKey: key}, nil
	case err != nil:
		return nil, fmt.Errorf("loading state: %w", err)
	}

	s := &state{}
	if _, err := xdr.Unmarshal(bytes.NewReader(data), s); err != nil {
		return nil, fmt.Errorf("deserializing state: %w", err)
	}
	if len(s.PrivKey) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("persisted private key has invalid length %d", len(s.PrivKey))
	}
	if envKey != nil && !bytes.Equal(envKey, s.PrivKey) {
		return nil, fmt.Errorf("private key from %s does not match the persisted one", signing.KeyEnvVar)
	}
	logger.Debug("loaded state", zap.String("datadir", datadir))
	return s, nil
}
