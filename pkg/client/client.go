package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/jmerrifield20/starnotary/pkg/signature"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrChallengeExpired is returned when a submission's challenge is older
	// than the server's validity window.
	ErrChallengeExpired = errors.New("challenge expired")
	// ErrUnauthorized is returned when the server rejects a challenge or a
	// signature.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrIntegrity is returned when the server refused an append because the
	// chain would not validate.
	ErrIntegrity = errors.New("chain integrity violation")
)

// ChainInfo is the chain overview returned by GET /api/v1/chain.
type ChainInfo struct {
	Height int    `json:"height"`
	Tip    string `json:"tip"`
}

// Violation describes every problem found at one chain index.
type Violation struct {
	Height   int      `json:"height"`
	Problems []string `json:"problems"`
}

// VerifyResult is the chain validation report.
type VerifyResult struct {
	Valid      bool        `json:"valid"`
	Errors     []string    `json:"errors"`
	Violations []Violation `json:"violations"`
}

// Challenge is an ownership challenge issued for an identity.
type Challenge struct {
	Identity      string    `json:"identity"`
	Token         string    `json:"token"`
	IssuedAt      time.Time `json:"issued_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	WindowSeconds int       `json:"window_seconds"`
}

// Payload is the decoded body of a record.
type Payload struct {
	Genesis bool            `json:"genesis,omitempty"`
	Owner   string          `json:"owner,omitempty"`
	Star    json.RawMessage `json:"star,omitempty"`
}

// Record is a committed chain record.
type Record struct {
	Hash         string   `json:"hash"`
	Height       int      `json:"height"`
	Time         int64    `json:"time"`
	PreviousHash string   `json:"previous_hash"`
	Body         string   `json:"body"` // hex
	Payload      *Payload `json:"payload,omitempty"`
	DecodeError  string   `json:"decode_error,omitempty"`
}

// Star is one owner-scoped star.
type Star struct {
	Owner string          `json:"owner"`
	Star  json.RawMessage `json:"star"`
}

// SubmitRequest is the payload for SubmitStar.
type SubmitRequest struct {
	Identity  string          `json:"identity"`
	Token     string          `json:"token"`
	Signature string          `json:"signature"`
	Star      json.RawMessage `json:"star"`
}

// Client is the starnotary SDK entry point.
type Client struct {
	base       string
	httpClient *http.Client
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		if hc == nil {
			return errors.New("nil http client")
		}
		c.httpClient = hc
		return nil
	}
}

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d <= 0 {
			return fmt.Errorf("timeout must be positive, got %s", d)
		}
		c.httpClient = &http.Client{Timeout: d}
		return nil
	}
}

// New creates a new Client talking to the notary at base.
//
//	c, err := client.New("http://localhost:8080", client.WithTimeout(5*time.Second))
func New(base string, opts ...Option) (*Client, error) {
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	c := &Client{
		base:       strings.TrimRight(base, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(base string, opts ...Option) *Client {
	c, err := New(base, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// Chain returns the current height and tip hash.
func (c *Client) Chain(ctx context.Context) (*ChainInfo, error) {
	var info ChainInfo
	if err := c.getJSON(ctx, "/api/v1/chain", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Height returns the height of the most recent record.
func (c *Client) Height(ctx context.Context) (int, error) {
	info, err := c.Chain(ctx)
	if err != nil {
		return 0, err
	}
	return info.Height, nil
}

// Verify asks the server to validate the whole chain.
func (c *Client) Verify(ctx context.Context) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.getJSON(ctx, "/api/v1/chain/verify", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// RequestChallenge obtains a fresh ownership challenge for identity.
func (c *Client) RequestChallenge(ctx context.Context, identity string) (*Challenge, error) {
	var ch Challenge
	if err := c.postJSON(ctx, "/api/v1/challenges", map[string]string{"identity": identity}, &ch); err != nil {
		return nil, err
	}
	return &ch, nil
}

// SubmitStar submits a signed star and returns the committed record.
func (c *Client) SubmitStar(ctx context.Context, sub SubmitRequest) (*Record, error) {
	var rec Record
	if err := c.postJSON(ctx, "/api/v1/stars", sub, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Notarize runs the full flow for key: request a challenge for its address,
// sign the token and submit star.
func (c *Client) Notarize(ctx context.Context, key *signature.PrivateKey, star json.RawMessage) (*Record, error) {
	ch, err := c.RequestChallenge(ctx, key.Address())
	if err != nil {
		return nil, fmt.Errorf("request challenge: %w", err)
	}
	sig, err := key.Sign([]byte(ch.Token))
	if err != nil {
		return nil, fmt.Errorf("sign challenge: %w", err)
	}
	return c.SubmitStar(ctx, SubmitRequest{
		Identity:  key.Address(),
		Token:     ch.Token,
		Signature: sig,
		Star:      star,
	})
}

// BlockByHeight fetches the record at height.
func (c *Client) BlockByHeight(ctx context.Context, height int) (*Record, error) {
	var rec Record
	if err := c.getJSON(ctx, "/api/v1/blocks/height/"+strconv.Itoa(height), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// BlockByHash fetches the record whose hash is hash.
func (c *Client) BlockByHash(ctx context.Context, hash string) (*Record, error) {
	var rec Record
	if err := c.getJSON(ctx, "/api/v1/blocks/hash/"+url.PathEscape(hash), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// StarsByIdentity lists every star owned by identity in chain order.
func (c *Client) StarsByIdentity(ctx context.Context, identity string) ([]Star, error) {
	var wrapper struct {
		Stars []Star `json:"stars"`
	}
	if err := c.getJSON(ctx, "/api/v1/stars/"+url.PathEscape(identity), &wrapper); err != nil {
		return nil, err
	}
	return wrapper.Stars, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return c.do(req, out)
}

// do executes req, maps error statuses to sentinel errors and decodes a
// successful JSON response into out.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<22))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		msg := errorMessage(body)
		switch resp.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
		case http.StatusGone:
			return fmt.Errorf("%w: %s", ErrChallengeExpired, msg)
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, msg)
		case http.StatusConflict:
			return fmt.Errorf("%w: %s", ErrIntegrity, msg)
		default:
			return fmt.Errorf("server error %d: %s", resp.StatusCode, msg)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		return e.Error
	}
	return string(body)
}
