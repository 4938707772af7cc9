// Package enrich calls the external workflows that enrich a conversation:
// the advice workflow, which reviews a conversation's prompt pairs, and the
// system-info webhook, which receives a session's one-time system snapshot.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/allaspectsdev/promptstudio/internal/config"
	"github.com/allaspectsdev/promptstudio/internal/security"
	"github.com/allaspectsdev/promptstudio/internal/session"
	"github.com/allaspectsdev/promptstudio/internal/tracing"
	"github.com/allaspectsdev/promptstudio/internal/vault"
)

// maxResponseBytes bounds how much of a workflow reply is read.
const maxResponseBytes = 1 << 20

const (
	kindAdvice     = "advice"
	kindSystemInfo = "system_info"
)

// StatusError is a non-2xx workflow reply.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("workflow returned status %d", e.Code)
}

// CredentialSource resolves a key reference to a bearer token.
type CredentialSource interface {
	ResolveKeyRef(ref string) (string, error)
}

// Options configures a Client. Empty URLs disable the matching call.
type Options struct {
	AdviceURL         string
	SystemInfoWebhook string
	KeyRef            string
	Credentials       CredentialSource
	Timeout           time.Duration
	Retry             RetryConfig
	// Breaker settings; BreakerThreshold 0 disables the breakers.
	BreakerThreshold int
	BreakerReset     time.Duration
	BreakerHalfOpen  int
	// Redactor scrubs prompt text sent to the advice workflow; nil sends
	// it as stored.
	Redactor   *security.Redactor
	Logger     *zerolog.Logger
	HTTPClient *http.Client
}

// OptionsFromConfig maps the enrichment config section onto Options.
func OptionsFromConfig(cfg config.EnrichmentConfig) Options {
	opts := Options{
		AdviceURL:         cfg.AdviceURL,
		SystemInfoWebhook: cfg.SystemInfoWebhook,
		KeyRef:            cfg.KeyRef,
		Credentials:       vault.New(),
		Timeout:           cfg.TimeoutDuration(),
		Redactor:          security.NewRedactor(cfg.Redact, cfg.RedactAllowList),
		Retry: RetryConfig{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond,
		},
	}
	if cfg.CBEnabled {
		opts.BreakerThreshold = cfg.CBFailureThreshold
		opts.BreakerReset = time.Duration(cfg.CBResetTimeoutSec) * time.Second
		opts.BreakerHalfOpen = cfg.CBHalfOpenMax
	}
	return opts
}

// Client talks to the enrichment workflows.
type Client struct {
	opts     Options
	http     *http.Client
	logger   zerolog.Logger
	validate *validator.Validate
	breakers map[string]*Breaker
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry.MaxAttempts = 1
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
			Timeout: opts.Timeout,
		}
	}
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	c := &Client{
		opts:     opts,
		http:     hc,
		logger:   logger.With().Str("component", "enrich").Logger(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		breakers: make(map[string]*Breaker),
	}
	if opts.BreakerThreshold > 0 {
		for _, kind := range []string{kindAdvice, kindSystemInfo} {
			c.breakers[kind] = NewBreaker(opts.BreakerThreshold, opts.BreakerReset, opts.BreakerHalfOpen)
		}
	}
	return c
}

// AdviceEnabled reports whether an advice workflow is configured.
func (c *Client) AdviceEnabled() bool { return c.opts.AdviceURL != "" }

// WebhookEnabled reports whether a system-info webhook is configured.
func (c *Client) WebhookEnabled() bool { return c.opts.SystemInfoWebhook != "" }

// BreakerStates returns the state of each breaker, keyed by workflow.
func (c *Client) BreakerStates() map[string]string {
	out := make(map[string]string, len(c.breakers))
	for kind, b := range c.breakers {
		out[kind] = b.State().String()
	}
	return out
}

// PromptPair is one row sent to the advice workflow.
type PromptPair struct {
	Prompt    string `json:"prompt"`
	AIPrompt  string `json:"ai_prompt"`
	Timestamp int64  `json:"timestamp" validate:"gte=0"`
}

// AdviceRequest is the advice workflow's request body.
type AdviceRequest struct {
	SessionID   string       `json:"session_id"  validate:"required"`
	PromptPairs []PromptPair `json:"promptPairs" validate:"required,min=1,dive"`
}

// PairsFromRows flattens paired display rows into advice pairs. A missing
// side is sent as an empty string.
func PairsFromRows(rows []session.PairedRow) []PromptPair {
	pairs := make([]PromptPair, 0, len(rows))
	for _, r := range rows {
		p := PromptPair{Timestamp: r.Timestamp}
		if r.Original != nil {
			p.Prompt = *r.Original
		}
		if r.Rewritten != nil {
			p.AIPrompt = *r.Rewritten
		}
		pairs = append(pairs, p)
	}
	return pairs
}

// Advice asks the advice workflow to review a conversation. The reply must
// be a JSON array of strings; anything else, and any transport failure,
// yields an error matching session.ErrEnrichmentUnavailable.
func (c *Client) Advice(ctx context.Context, sessionID string, rows []session.PairedRow) (advice []string, err error) {
	if !c.AdviceEnabled() {
		return nil, fmt.Errorf("%w: advice workflow not configured", session.ErrEnrichmentUnavailable)
	}
	scope := c.opts.Redactor.Scope()
	pairs := PairsFromRows(rows)
	for i := range pairs {
		pairs[i].Prompt = scope.Redact(pairs[i].Prompt)
		pairs[i].AIPrompt = scope.Redact(pairs[i].AIPrompt)
	}
	if n := len(scope.Findings()); n > 0 {
		c.logger.Debug().Str("session_id", sessionID).Int("redacted", n).Msg("redacted advice request")
	}

	req := AdviceRequest{SessionID: sessionID, PromptPairs: pairs}
	if err := c.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrEnrichmentUnavailable, err)
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("enrich: encode advice request: %w", err)
	}

	ctx, span := tracing.StartEnrichSpan(ctx, kindAdvice, c.opts.AdviceURL)
	defer func() { tracing.End(span, err) }()

	reply, err := c.post(ctx, kindAdvice, c.opts.AdviceURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrEnrichmentUnavailable, err)
	}
	advice, err = decodeAdvice(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrEnrichmentUnavailable, err)
	}
	for i := range advice {
		advice[i] = scope.Restore(advice[i])
	}
	return advice, nil
}

// decodeAdvice accepts exactly a JSON array of strings.
func decodeAdvice(reply []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(reply)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("advice reply is not a JSON array")
	}
	var advice []string
	if err := json.Unmarshal(trimmed, &advice); err != nil {
		return nil, fmt.Errorf("advice reply is not an array of strings: %w", err)
	}
	return advice, nil
}

// ForwardSystemInfo posts a session's system snapshot to the webhook and
// returns its reply as a JSON document. A reply that is not JSON is
// returned as a JSON string. It returns (nil, nil) when no webhook is
// configured.
func (c *Client) ForwardSystemInfo(ctx context.Context, info session.SystemInfo) (resp json.RawMessage, err error) {
	if !c.WebhookEnabled() {
		return nil, nil
	}
	if err := c.validate.Struct(info); err != nil {
		return nil, fmt.Errorf("%w: %v", session.ErrEnrichmentUnavailable, err)
	}
	body, err := json.Marshal(struct {
		SessionID  string          `json:"session_id"`
		SystemData json.RawMessage `json:"system_data"`
		Timestamp  int64           `json:"timestamp"`
	}{info.SessionID, info.SystemData, info.Timestamp})
	if err != nil {
		return nil, fmt.Errorf("enrich: encode system info: %w", err)
	}

	ctx, span := tracing.StartEnrichSpan(ctx, kindSystemInfo, c.opts.SystemInfoWebhook)
	defer func() { tracing.End(span, err) }()

	reply, err := c.post(ctx, kindSystemInfo, c.opts.SystemInfoWebhook, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrEnrichmentUnavailable, err)
	}
	reply = bytes.TrimSpace(reply)
	if len(reply) == 0 {
		return nil, nil
	}
	if json.Valid(reply) {
		return json.RawMessage(reply), nil
	}
	quoted, err := json.Marshal(string(reply))
	if err != nil {
		return nil, fmt.Errorf("enrich: quote webhook reply: %w", err)
	}
	return quoted, nil
}

func (c *Client) credential() (string, error) {
	if c.opts.Credentials == nil || c.opts.KeyRef == "" {
		return "", nil
	}
	token, err := c.opts.Credentials.ResolveKeyRef(c.opts.KeyRef)
	if errors.Is(err, vault.ErrNoCredential) {
		// No key stored: call the workflow unauthenticated.
		return "", nil
	}
	return token, err
}

// post sends body to url with retries, guarded by the workflow's breaker,
// and returns the 2xx reply body.
func (c *Client) post(ctx context.Context, kind, url string, body []byte) ([]byte, error) {
	breaker := c.breakers[kind]
	if breaker != nil && !breaker.Allow() {
		return nil, ErrCircuitOpen
	}

	token, err := c.credential()
	if err != nil {
		return nil, fmt.Errorf("resolve credential: %w", err)
	}

	reply, err := c.postWithRetry(ctx, kind, url, token, body)
	if breaker != nil {
		if err != nil {
			breaker.Failure()
		} else {
			breaker.Success()
		}
	}
	return reply, err
}

func (c *Client) postWithRetry(ctx context.Context, kind, url, token string, body []byte) ([]byte, error) {
	var lastErr error
	var wait time.Duration
	for attempt := 0; attempt < c.opts.Retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(attempt-1, c.opts.Retry.BaseDelay, c.opts.Retry.MaxDelay)
			if wait > delay {
				delay = wait
			}
			if err := sleepWithContext(ctx, delay); err != nil {
				return nil, err
			}
		}

		reply, retryable, ra, err := c.once(ctx, url, token, body)
		if err == nil {
			return reply, nil
		}
		lastErr = err
		if !retryable || ctx.Err() != nil {
			break
		}
		wait = ra
		c.logger.Warn().Err(err).Str("workflow", kind).Int("attempt", attempt+1).Msg("workflow call failed, retrying")
	}
	return nil, lastErr
}

// once makes a single POST. It reports whether a failure is retryable and
// any Retry-After the workflow asked for.
func (c *Client) once(ctx context.Context, url, token string, body []byte) ([]byte, bool, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	tracing.InjectHeaders(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, 0, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	reply, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, 0, fmt.Errorf("read reply: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, retryableStatus(resp.StatusCode), retryAfter(resp.Header), &StatusError{Code: resp.StatusCode}
	}
	return reply, false, 0, nil
}
