// Command challenge sends challenges to a single miner and judges its answers.
// It is meant for operators checking that a miner is reachable and playing.
package main

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/signing"
	"github.com/spacemeshos/noncemine/transport"
	"github.com/spacemeshos/noncemine/validator"
)

//nolint:lll
type config struct {
	Address string        `long:"address" description:"Base URL of the miner" required:"true"`
	Miner   string        `long:"miner"   description:"Hotkey of the miner"`
	Block   uint64        `long:"block"   description:"Block id to challenge for"`
	Count   int           `long:"count"   description:"Number of challenges to send"`
	Secret  *uint64       `long:"secret"  description:"Expected secret, guesses are judged against its digest when set"`
	Timeout time.Duration `long:"timeout" description:"Timeout of a single challenge"`
	Debug   bool          `long:"debug"   description:"Enable debug logs"`
}

func loadConfig() (*config, error) {
	cfg := config{
		Count:   1,
		Timeout: 12 * time.Second,
	}
	if _, err := flags.Parse(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadKey reads the signing key from the environment or generates a throwaway one.
func loadKey() (ed25519.PrivateKey, error) {
	key, err := signing.PrivateKeyFromEnv()
	if err != nil || key != nil {
		return key, err
	}
	_, key, err = ed25519.GenerateKey(nil)
	return key, err
}

func run(ctx context.Context, cfg *config) error {
	logger := logging.FromContext(ctx)
	key, err := loadKey()
	if err != nil {
		return err
	}
	client := transport.NewHTTPClient(key, cfg.Timeout)
	logger.Info("sending challenges", zap.String("as", signing.Hotkey(key.Public().(ed25519.PublicKey))), zap.String("to", cfg.Address))

	miner := registry.Participant{Hotkey: cfg.Miner, Address: cfg.Address}
	var commitment *validator.Commitment
	if cfg.Secret != nil {
		commitment = &validator.Commitment{
			RoundID: cfg.Block,
			Secret:  shared.Candidate(*cfg.Secret),
			Target:  shared.DigestOf(shared.Candidate(*cfg.Secret)),
		}
	}

	var errs []error
	for i := 0; i < cfg.Count; i++ {
		resp, err := client.SendChallenge(ctx, miner, shared.Challenge{RoundID: cfg.Block, Miner: cfg.Miner})
		if err != nil {
			logger.Warn("challenge failed", zap.Int("n", i), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		fields := []zap.Field{zap.Int("n", i), zap.Uint64("block", resp.RoundID), zap.Bool("answered", resp.Answered())}
		if resp.Answered() {
			fields = append(fields, zap.String("hash", resp.Hash.Int().String()))
		}
		if commitment != nil {
			fields = append(fields, zap.Stringer("verdict", validator.Judge(*commitment, resp, nil)))
		}
		logger.Info("response", fields...)
	}
	return errors.Join(errs...)
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			_, _ = fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}

	level := zap.InfoLevel
	if cfg.Debug {
		level = zap.DebugLevel
	}
	ctx := logging.NewContext(context.Background(), logging.New(level, logging.FileConfig{}, false))
	if err := run(ctx, cfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
