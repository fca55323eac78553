package transport

import (
	"context"
	"encoding/hex"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/spacemeshos/noncemine/logging"
	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/signing"
)

const (
	ChallengePath   = "/v1/challenge"
	HotkeyHeader    = "X-Hotkey"
	SignatureHeader = "X-Signature"
)

// Authorizer decides whether a caller may send challenges.
type Authorizer interface {
	Authorize(ctx context.Context, hotkey string) error
}

// Server exposes a miner Handler over HTTP.
type Server struct {
	e       *echo.Echo
	handler Handler
	auth    Authorizer
	logger  *zap.Logger
}

func NewServer(logger *zap.Logger, handler Handler, auth Authorizer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s := &Server{
		e:       e,
		handler: handler,
		auth:    auth,
		logger:  logger,
	}

	e.Use(s.loggerMiddleware)
	g := e.Group("/v1/")
	g.POST("challenge", s.postChallenge, s.blacklistMiddleware)

	return s
}

// Handler returns the http.Handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Serve accepts connections on the listener until the context is canceled.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	server := &http.Server{Handler: s.e, ReadHeaderTimeout: time.Second * 5}
	errs := make(chan error, 1)
	go func() {
		s.logger.Sugar().Infof("miner API listening on %s", listener.Addr())
		errs <- server.Serve(listener)
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Sugar().Errorf("failed to shutdown server: %s", err)
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// loggerMiddleware tags every request with a fresh request id and
// puts the resulting logger into the request context.
func (s *Server) loggerMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		logger := s.logger.Named(req.URL.Path).With(zap.Stringer("request_id", uuid.New()))
		c.SetRequest(req.WithContext(logging.NewContext(req.Context(), logger)))

		logger.Debug("new request", zap.String("from", c.RealIP()), zap.String("method", req.Method))
		err := next(c)
		if err != nil {
			logger.Info("FAILURE", zap.Error(err))
		}
		return err
	}
}

// blacklistMiddleware rejects unauthorized callers before the body is read.
func (s *Server) blacklistMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		hotkey := c.Request().Header.Get(HotkeyHeader)
		if hotkey == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing "+HotkeyHeader+" header")
		}
		if err := s.auth.Authorize(c.Request().Context(), hotkey); err != nil {
			if errors.Is(err, registry.ErrUnauthorized) {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return next(c)
	}
}

func (s *Server) postChallenge(c echo.Context) error {
	var ch shared.Challenge
	if err := c.Bind(&ch); err != nil {
		return err
	}
	hotkey := c.Request().Header.Get(HotkeyHeader)
	signature, err := hex.DecodeString(c.Request().Header.Get(SignatureHeader))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed signature")
	}
	if _, err := signing.Verify(ch, signature, hotkey); err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	resp, err := s.handler.HandleChallenge(c.Request().Context(), hotkey, ch)
	switch {
	case errors.Is(err, registry.ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, resp)
}
