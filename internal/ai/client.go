// Package ai wraps the OpenRouter chat/completions endpoint used for image
// generation. The provider is slow; callers are expected to pass a context
// with a generous deadline.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/bananagen/backend/internal/config"
	"github.com/bananagen/backend/internal/model"
)

const RequestTimeout = 5 * time.Minute

var ErrNoImage = errors.New("AI не вернул картинку")

var (
	base64ImageRe = regexp.MustCompile(`(data:image/[a-zA-Z]*;base64,[^\s")]+)`)
	urlRe         = regexp.MustCompile(`(https?://[^\s)]+)`)
)

type Client struct {
	apiKey     string
	baseURL    string
	referer    string
	httpClient *http.Client
}

func New(cfg config.OpenRouterConfig) *Client {
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: cfg.BaseURL,
		referer: cfg.Referer,
		httpClient: &http.Client{
			Timeout: RequestTimeout,
		},
	}
}

func (c *Client) Configured() bool {
	return c.apiKey != ""
}

type message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type completionRequest struct {
	Model      string    `json:"model"`
	Messages   []message `json:"messages"`
	Modalities []string  `json:"modalities"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
			Images  []struct {
				URL      string `json:"url"`
				ImageURL *imageURL `json:"image_url"`
			} `json:"images"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// GenerateImage runs one generation call and returns the resulting image as a
// URL or a base64 data URL, whichever the model produced.
func (c *Client) GenerateImage(ctx context.Context, modelID, prompt, imageBase64 string, mode model.Mode) (string, error) {
	return c.generateWithMessages(ctx, modelID, buildMessages(prompt, imageBase64, mode))
}

func (c *Client) generateWithMessages(ctx context.Context, modelID string, messages []message) (string, error) {
	reqBody := completionRequest{
		Model:      modelID,
		Messages:   messages,
		Modalities: []string{"image", "text"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openrouter request failed: %w", err)
	}
	defer resp.Body.Close()

	var completion completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return "", fmt.Errorf("failed to decode openrouter response: %w", err)
	}

	if completion.Error != nil {
		return "", fmt.Errorf("openrouter error: %s", completion.Error.Message)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openrouter returned status %d", resp.StatusCode)
	}
	if len(completion.Choices) == 0 {
		return "", ErrNoImage
	}

	return extractImage(completion)
}

// extractImage mirrors the response shapes OpenRouter is known to produce:
// a base64 data URL or plain URL inside the text content, or the dedicated
// images array.
func extractImage(completion completionResponse) (string, error) {
	msg := completion.Choices[0].Message

	if match := base64ImageRe.FindString(msg.Content); match != "" {
		return match, nil
	}
	if match := urlRe.FindString(msg.Content); match != "" {
		return match, nil
	}
	if len(msg.Images) > 0 {
		img := msg.Images[0]
		if img.URL != "" {
			return img.URL, nil
		}
		if img.ImageURL != nil && img.ImageURL.URL != "" {
			return img.ImageURL.URL, nil
		}
	}
	return "", ErrNoImage
}
