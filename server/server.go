package server

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spacemeshos/noncemine/clock"
	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/miner"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/signing"
	"github.com/spacemeshos/noncemine/transport"
	"github.com/spacemeshos/noncemine/validator"
)

var (
	ErrUnknownRole     = errors.New("unknown role")
	ErrGenesisRequired = errors.New("validator requires --genesis-time")
)

type svc interface {
	Run(ctx context.Context) error
}

// lockedRand is a math/rand source safe for concurrent use.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand() *lockedRand {
	return &lockedRand{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))} //#nosec G404
}

func (r *lockedRand) Int63n(n int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Int63n(n)
}

func (r *lockedRand) Perm(n int) []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.Perm(n)
}

// Server runs a single node, either a miner or a validator.
type Server struct {
	cfg        Config
	privateKey ed25519.PrivateKey
	registry   *registry.File

	// miner
	listener net.Listener
	api      *transport.Server

	// validator
	worker svc
	store  *validator.Store
}

func New(ctx context.Context, cfg Config) (*Server, error) {
	logger := logging.FromContext(ctx)

	if _, err := os.Stat(cfg.DataDir); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, err
		}
	}

	s, err := loadState(ctx, cfg.DataDir, os.Getenv(signing.KeyEnvVar))
	if err != nil {
		return nil, fmt.Errorf("loading state: %w", err)
	}
	if err := saveState(cfg.DataDir, s); err != nil {
		return nil, fmt.Errorf("saving state: %w", err)
	}
	privateKey := ed25519.PrivateKey(s.PrivKey)
	hotkey := signing.Hotkey(privateKey.Public().(ed25519.PublicKey))

	reg, err := registry.Open(ctx, cfg.Registry.Path)
	if err != nil {
		return nil, fmt.Errorf("loading registry: %w", err)
	}

	server := &Server{
		cfg:        cfg,
		privateKey: privateKey,
		registry:   reg,
	}

	rng := newLockedRand()
	sampler := shared.NewSampler(cfg.DomainSize, rng)
	logger.Info("node identity", zap.String("role", string(cfg.Role)), zap.String("hotkey", hotkey), zap.Uint64("domain", sampler.Domain()))

	switch cfg.Role {
	case RoleMiner:
		addr, err := net.ResolveTCPAddr("tcp", cfg.RawListener)
		if err != nil {
			return nil, err
		}
		listener, err := net.Listen(addr.Network(), addr.String())
		if err != nil {
			return nil, fmt.Errorf("failed to listen: %v", err)
		}
		gate := registry.NewGate(reg, cfg.Registry.Policy)
		engine := miner.NewEngine(sampler, cfg.Miner.ExtraAttempts)
		server.listener = listener
		server.api = transport.NewServer(logger.Named("api"), miner.New(hotkey, engine, gate), gate)

	case RoleValidator:
		if cfg.Genesis.IsZero() {
			return nil, ErrGenesisRequired
		}
		clk := clock.NewChain(cfg.Genesis.Time(), cfg.Block)
		if _, err := clk.CurrentRound(ctx); err != nil {
			return nil, fmt.Errorf("reading current block: %w", err)
		}
		store, err := validator.OpenStore(cfg.DbDir, cfg.CommitmentsLRU)
		if err != nil {
			return nil, err
		}
		controller, err := validator.New(
			ctx,
			sampler,
			clk,
			registry.NewRandomSelector(reg, hotkey, cfg.Registry.VpermitStakeLimit, rng),
			transport.NewHTTPClient(privateKey, cfg.Validator.QueryTimeout),
			validator.WithConfig(cfg.Validator),
			validator.WithCommitmentStore(store),
		)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("creating validator: %w", err), store.Close())
		}
		server.store = store
		server.worker = controller

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownRole, cfg.Role)
	}

	return server, nil
}

func (s *Server) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Addr returns the address the miner API listens on, nil for validators.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) PublicKey() ed25519.PublicKey {
	return s.privateKey.Public().(ed25519.PublicKey)
}

func (s *Server) Hotkey() string {
	return signing.Hotkey(s.PublicKey())
}

// Start runs the node until the context is canceled.
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := context.WithCancel(ctx)
	defer stop()
	serverGroup, ctx := errgroup.WithContext(ctx)

	logger := logging.FromContext(ctx)

	serverGroup.Go(func() error {
		return s.syncRegistry(ctx)
	})

	if s.cfg.MetricsPort != nil {
		metricsServer := &http.Server{
			Addr:              fmt.Sprintf(":%d", *s.cfg.MetricsPort),
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: time.Second * 5,
		}
		serverGroup.Go(func() error {
			logger.Sugar().Infof("metrics server listening on %s", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		serverGroup.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if s.api != nil {
		logger.Info("starting miner")
		serverGroup.Go(func() error {
			return s.api.Serve(ctx, s.listener)
		})
	}
	if s.worker != nil {
		logger.Info("starting validator", zap.Object("block", s.cfg.Block))
		serverGroup.Go(func() error {
			return s.worker.Run(ctx)
		})
	}

	if err := serverGroup.Wait(); err != nil {
		logger.Sugar().Errorf("error when waiting to shutdown servers: %s", err)
		return err
	}
	return nil
}

// syncRegistry periodically reloads the registry snapshot.
// Failing to reload keeps the previous snapshot.
func (s *Server) syncRegistry(ctx context.Context) error {
	if s.cfg.Registry.SyncInterval <= 0 {
		return nil
	}
	logger := logging.FromContext(ctx).Named("registry")
	ticker := time.NewTicker(s.cfg.Registry.SyncInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := s.registry.Sync(ctx); err != nil {
				logger.Warn("failed to sync registry", zap.Error(err))
			}
		}
	}
}
