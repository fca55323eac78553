package transport

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spacemeshos/noncemine/registry"
	"github.com/spacemeshos/noncemine/shared"
	"github.com/spacemeshos/noncemine/signing"
)

// maxResponseSize bounds the body read from a miner.
const maxResponseSize = 4096

// HTTPClient sends signed challenges to miners' HTTP endpoints.
type HTTPClient struct {
	client *http.Client
	key    ed25519.PrivateKey
}

// NewHTTPClient creates a client signing challenges with key.
// Timeout bounds a single request, 0 means the caller's context alone limits it.
func NewHTTPClient(key ed25519.PrivateKey, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
		key:    key,
	}
}

// Hotkey is the identity the client sends challenges as.
func (c *HTTPClient) Hotkey() string {
	return signing.Hotkey(c.key.Public().(ed25519.PublicKey))
}

// Implement Sender.
func (c *HTTPClient) SendChallenge(ctx context.Context, p registry.Participant, ch shared.Challenge) (shared.Response, error) {
	signed, err := signing.Sign(ch, c.key)
	if err != nil {
		return shared.Response{}, err
	}
	endpoint, err := url.JoinPath(p.Address, ChallengePath)
	if err != nil {
		return shared.Response{}, fmt.Errorf("%w: invalid address %q: %v", ErrNoResponse, p.Address, err)
	}
	body, err := json.Marshal(signed.Data())
	if err != nil {
		return shared.Response{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return shared.Response{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HotkeyHeader, signed.Hotkey())
	req.Header.Set(SignatureHeader, hex.EncodeToString(signed.Signature()))

	httpResp, err := c.client.Do(req)
	if err != nil {
		return shared.Response{}, fmt.Errorf("%w: %v", ErrNoResponse, err)
	}
	defer httpResp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseSize))
	if err != nil {
		return shared.Response{}, fmt.Errorf("%w: reading body: %v", ErrNoResponse, err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return shared.Response{}, fmt.Errorf("%w: status %d: %s", ErrRejected, httpResp.StatusCode, bytes.TrimSpace(data))
	}

	var resp shared.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return shared.Response{}, fmt.Errorf("%w: decoding response: %v", ErrNoResponse, err)
	}
	return resp, nil
}
