package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"
)

const DefaultMyMemoryEndpoint = "https://api.mymemory.translated.net"

// MyMemoryClient talks to the MyMemory translation API.
type MyMemoryClient struct {
	http   *resty.Client
	email  string
	logger *slog.Logger
}

type myMemoryResponse struct {
	ResponseData *struct {
		TranslatedText *string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus json.RawMessage `json:"responseStatus"`
}

// NewMyMemoryClient builds a client for endpoint. A non-empty email is sent
// as the de parameter, which raises the anonymous daily quota.
func NewMyMemoryClient(endpoint, email string, timeout time.Duration, logger *slog.Logger) *MyMemoryClient {
	if endpoint == "" {
		endpoint = DefaultMyMemoryEndpoint
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &MyMemoryClient{
		http:   client,
		email:  email,
		logger: logger.With(slog.String("component", "translation-mymemory")),
	}
}

func (c *MyMemoryClient) Translate(ctx context.Context, text, source, target string) (string, error) {
	params := map[string]string{
		"q":        text,
		"langpair": source + "|" + target,
	}
	if c.email != "" {
		params["de"] = c.email
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		Get("/get")
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTranslationRequestFailed, err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("%w: unexpected status %d", ErrTranslationRequestFailed, resp.StatusCode())
	}

	var body myMemoryResponse
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("%w: decode response: %w", ErrTranslationRequestFailed, err)
	}
	if body.ResponseData == nil || body.ResponseData.TranslatedText == nil {
		return "", fmt.Errorf("%w: response has no responseData.translatedText", ErrTranslationRequestFailed)
	}

	c.logger.Debug("translation response", slog.String("langpair", params["langpair"]), slog.Int("status", resp.StatusCode()))
	return *body.ResponseData.TranslatedText, nil
}
