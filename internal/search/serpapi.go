package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/example/imagecheck/internal/logging"
)

// DefaultEndpoint is SerpApi's JSON search endpoint.
const DefaultEndpoint = "https://serpapi.com/search.json"

const reverseImageEngine = "google_reverse_image"

// maxErrorBody bounds how much of an upstream error body is kept in error messages.
const maxErrorBody = 512

// SerpAPIClient runs Google reverse image searches through SerpApi.
type SerpAPIClient struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	logger     *zap.Logger
}

// NewSerpAPIClient returns a client; an empty endpoint selects DefaultEndpoint.
func NewSerpAPIClient(endpoint, apiKey string, timeout time.Duration, logger *zap.Logger) *SerpAPIClient {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &SerpAPIClient{
		httpClient: &http.Client{Timeout: timeout},
		endpoint:   endpoint,
		apiKey:     apiKey,
		logger:     logger.Named("serpapi"),
	}
}

// FindRelated returns the provider's JSON payload for images similar to imageURL, unmodified.
func (c *SerpAPIClient) FindRelated(ctx context.Context, imageURL string) (json.RawMessage, error) {
	requestID := logging.RequestIDFromContext(ctx)

	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, logging.NewOperationError("search.find_related", requestID, err)
	}
	q := u.Query()
	q.Set("engine", reverseImageEngine)
	q.Set("image_url", imageURL)
	q.Set("api_key", c.apiKey)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, logging.NewOperationError("search.find_related", requestID, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// url.Error embeds the query string, which carries the api key.
		wrapped := logging.NewOperationError("search.find_related", requestID, fmt.Errorf("request failed: %w", unwrapURLError(err)))
		c.logger.Error("reverse image search failed", zap.Error(wrapped))
		return nil, wrapped
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, logging.NewOperationError("search.find_related", requestID, err)
	}

	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		wrapped := logging.NewOperationError("search.find_related", requestID, fmt.Errorf("provider returned %d: %s", resp.StatusCode, snippet))
		c.logger.Error("reverse image search rejected", zap.Error(wrapped), zap.Int("status", resp.StatusCode))
		return nil, wrapped
	}

	if !json.Valid(body) {
		return nil, logging.NewOperationError("search.find_related", requestID, fmt.Errorf("provider returned invalid JSON"))
	}
	return json.RawMessage(body), nil
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
