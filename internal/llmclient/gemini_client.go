// internal/llmclient/gemini_client.go
package llmclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/codeshield-25/codeshield-web/api/schemas"
	"github.com/codeshield-25/codeshield-web/internal/config"
)

// GeminiClient implements schemas.LLMClient on top of the Gemini API.
type GeminiClient struct {
	client         *genai.Client
	model          string
	config         config.LLMConfig
	logger         *zap.Logger
	backoffFactory func() backoff.BackOff
}

var _ schemas.LLMClient = (*GeminiClient)(nil)

// GeminiOption customizes a GeminiClient.
type GeminiOption func(*geminiOptions)

type geminiOptions struct {
	baseURL    string
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

// WithBaseURL points the client at an alternative API host.
func WithBaseURL(u string) GeminiOption {
	return func(o *geminiOptions) { o.baseURL = u }
}

// WithHTTPClient sets the transport used for API calls.
func WithHTTPClient(c *http.Client) GeminiOption {
	return func(o *geminiOptions) { o.httpClient = c }
}

// WithBackoff replaces the retry policy.
func WithBackoff(f func() backoff.BackOff) GeminiOption {
	return func(o *geminiOptions) { o.backoff = f }
}

// NewGeminiClient creates a client for model using the credentials and
// sampling defaults in cfg.
func NewGeminiClient(ctx context.Context, cfg config.LLMConfig, model string, logger *zap.Logger, opts ...GeminiOption) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if model == "" {
		return nil, fmt.Errorf("gemini model name is required")
	}

	o := geminiOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: cfg.APITimeout}
	}

	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	factory := o.backoff
	if factory == nil {
		retries := cfg.MaxRetries
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 2 * time.Minute
			if retries < 0 {
				retries = 0
			}
			return backoff.WithMaxRetries(b, uint64(retries))
		}
	}

	return &GeminiClient{
		client:         client,
		model:          model,
		config:         cfg,
		logger:         logger.Named("llm_client.gemini").With(zap.String("model", model)),
		backoffFactory: factory,
	}, nil
}

// Generate sends the prompts to Gemini, retrying transient failures.
func (c *GeminiClient) Generate(ctx context.Context, req schemas.GenerationRequest) (string, error) {
	if strings.TrimSpace(req.UserPrompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", schemas.ErrMalformedInput)
	}
	contents := genai.Text(req.UserPrompt)
	gc := c.generationConfig(req)

	var text string
	attempt := 0
	operation := func() error {
		attempt++
		start := time.Now()
		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, gc)
		if err != nil {
			return c.classify(err, attempt)
		}

		if len(resp.Candidates) == 0 {
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				return backoff.Permanent(fmt.Errorf("gemini blocked the prompt (reason: %s)", resp.PromptFeedback.BlockReason))
			}
			return backoff.Permanent(errors.New("gemini returned no candidates"))
		}
		out := resp.Text()
		if out == "" {
			reason := resp.Candidates[0].FinishReason
			if reason == genai.FinishReasonSafety || reason == genai.FinishReasonBlocklist {
				return backoff.Permanent(fmt.Errorf("gemini blocked the response (reason: %s)", reason))
			}
			return fmt.Errorf("gemini returned empty content (reason: %s)", reason)
		}

		fields := []zap.Field{zap.Duration("duration", time.Since(start)), zap.Int("attempt", attempt)}
		if u := resp.UsageMetadata; u != nil {
			fields = append(fields,
				zap.Int32("prompt_tokens", u.PromptTokenCount),
				zap.Int32("completion_tokens", u.CandidatesTokenCount),
				zap.Int32("total_tokens", u.TotalTokenCount),
			)
		}
		c.logger.Info("LLM generation complete", fields...)
		text = out
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backoffFactory(), ctx)); err != nil {
		return "", err
	}
	return text, nil
}

// classify marks API errors that cannot succeed on retry as permanent.
func (c *GeminiClient) classify(err error, attempt int) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		wrapped := fmt.Errorf("gemini API error: status %d: %s", apiErr.Code, apiErr.Message)
		switch apiErr.Code {
		case http.StatusTooManyRequests, http.StatusInternalServerError,
			http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			c.logger.Warn("Transient LLM error, retrying", zap.Int("status", apiErr.Code), zap.Int("attempt", attempt))
			return wrapped
		default:
			c.logger.Error("LLM request rejected", zap.Int("status", apiErr.Code), zap.String("message", apiErr.Message))
			return backoff.Permanent(wrapped)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return backoff.Permanent(err)
	}
	c.logger.Warn("Network error during LLM request, retrying", zap.Error(err), zap.Int("attempt", attempt))
	return fmt.Errorf("gemini request failed: %w", err)
}

// generationConfig merges per-request options over the configured defaults.
func (c *GeminiClient) generationConfig(req schemas.GenerationRequest) *genai.GenerateContentConfig {
	temp := c.config.Temperature
	if req.Options.Temperature > 0 {
		temp = float32(req.Options.Temperature)
	}
	gc := &genai.GenerateContentConfig{Temperature: genai.Ptr(temp)}

	topP := c.config.TopP
	if req.Options.TopP > 0 {
		topP = float32(req.Options.TopP)
	}
	if topP > 0 {
		gc.TopP = genai.Ptr(topP)
	}
	topK := c.config.TopK
	if req.Options.TopK > 0 {
		topK = req.Options.TopK
	}
	if topK > 0 {
		gc.TopK = genai.Ptr(float32(topK))
	}
	if c.config.MaxTokens > 0 {
		gc.MaxOutputTokens = int32(c.config.MaxTokens)
	}
	if req.SystemPrompt != "" {
		gc.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return gc
}

// Close is a no-op; the underlying client holds no long-lived connections.
func (c *GeminiClient) Close() error { return nil }
