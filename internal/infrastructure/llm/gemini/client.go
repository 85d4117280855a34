package gemini

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/core/extraction"
	"github.com/taxbridge/taxprep/internal/infrastructure/resilience"
)

const (
	providerName = "gemini"
	DefaultModel = "gemini-2.0-flash"
)

var errEmptyResponse = errors.New("model returned an empty response")

type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
}

// Client sends one document plus the extraction prompt per call and returns
// the model's raw text. It does not retry; the executor only fails fast while
// the provider is unhealthy.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	executor    *resilience.Executor
	pacer       *resilience.Pacer
}

type Option func(*Client)

func WithExecutor(executor *resilience.Executor) Option {
	return func(c *Client) {
		c.executor = executor
	}
}

func WithPacer(pacer *resilience.Pacer) Option {
	return func(c *Client) {
		c.pacer = pacer
	}
}

func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		client:      client,
		model:       model,
		temperature: cfg.Temperature,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", domain.NewExtractionCallError(providerName, errors.New("document is empty"))
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return "", domain.NewExtractionCallError(providerName, err)
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(data, inlineMIMEType(mimeType)),
			genai.NewPartFromText(extraction.Prompt),
		}, genai.RoleUser),
	}
	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(c.temperature),
		ResponseMIMEType: "application/json",
	}

	text, err := resilience.ExecuteValue(ctx, c.executor, "gemini.generate", func(ctx context.Context) (string, error) {
		resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
		if err != nil {
			return "", fmt.Errorf("generate content: %w", err)
		}
		text := strings.TrimSpace(resp.Text())
		if text == "" {
			return "", errEmptyResponse
		}
		return text, nil
	}, classifyGeminiError)
	if err != nil {
		return "", domain.NewExtractionCallError(providerName, err)
	}
	return text, nil
}

// inlineMIMEType maps legacy aliases the API rejects.
func inlineMIMEType(mimeType string) string {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}

func classifyGeminiError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errEmptyResponse) {
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}
	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}
