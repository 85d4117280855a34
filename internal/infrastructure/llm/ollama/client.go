package ollama

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/taxbridge/taxprep/internal/core/domain"
	"github.com/taxbridge/taxprep/internal/infrastructure/resilience"
)

const providerName = "ollama"

// Client drives a local vision model through /api/generate. Only images are
// accepted; PDFs need a hosted provider.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	executor   *resilience.Executor
	pacer      *resilience.Pacer
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

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

func New(baseURL, model string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Extract(ctx context.Context, data []byte, mimeType string) (string, error) {
	if !isImage(mimeType) {
		return "", domain.NewExtractionCallError(providerName, fmt.Errorf("mime type %s is not supported by local vision models", mimeType))
	}
	if len(data) == 0 {
		return "", domain.NewExtractionCallError(providerName, fmt.Errorf("document is empty"))
	}
	if err := c.pacer.Wait(ctx); err != nil {
		return "", domain.NewExtractionCallError(providerName, err)
	}

	text, err := resilience.ExecuteValue(ctx, c.executor, "ollama.generate", func(ctx context.Context) (string, error) {
		return c.generate(ctx, buildExtractionRequest(c.model, data))
	}, classifyOllamaError)
	if err != nil {
		return "", domain.NewExtractionCallError(providerName, err)
	}
	return text, nil
}

func (c *Client) generate(ctx context.Context, reqBody map[string]any) (string, error) {
	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", err
	}
	text := strings.TrimSpace(response.Response)
	if text == "" {
		return "", fmt.Errorf("ollama generate returned an empty response")
	}
	return text, nil
}

func isImage(mimeType string) bool {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg", "image/png", "image/webp":
		return true
	default:
		return false
	}
}
