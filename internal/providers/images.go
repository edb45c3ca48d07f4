package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ImagesClient talks to an OpenAI-compatible image-generation endpoint.
type ImagesClient struct {
	apiKey      string
	apiBase     string
	model       string
	defaultSize string
	client      *http.Client
}

func NewImagesClient(apiKey, apiBase, model, defaultSize string) *ImagesClient {
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")
	if model == "" {
		model = "dall-e-3"
	}
	if defaultSize == "" {
		defaultSize = "1024x1024"
	}

	return &ImagesClient{
		apiKey:      apiKey,
		apiBase:     apiBase,
		model:       model,
		defaultSize: defaultSize,
		client:      &http.Client{Timeout: 120 * time.Second},
	}
}

// Generate produces one image for the prompt and resolves it to raw bytes.
// An empty result list from the API is an error, not an empty result.
func (c *ImagesClient) Generate(ctx context.Context, req ImageRequest) (*ImageResult, error) {
	size := req.Size
	if size == "" {
		size = c.defaultSize
	}

	body := map[string]any{
		"model":           c.model,
		"prompt":          req.Prompt,
		"n":               1,
		"size":            size,
		"response_format": "b64_json",
	}
	if req.User != "" {
		body["user"] = req.User
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiBase+"/images/generations", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var wire struct {
		Data []struct {
			B64JSON       string `json:"b64_json"`
			URL           string `json:"url"`
			RevisedPrompt string `json:"revised_prompt"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBody, &wire); err != nil {
		return nil, fmt.Errorf("decode image response: %w", err)
	}

	if len(wire.Data) == 0 {
		return nil, fmt.Errorf("image generation returned no results")
	}

	item := wire.Data[0]
	description := item.RevisedPrompt
	if description == "" {
		description = req.Prompt
	}

	var raw []byte
	switch {
	case item.B64JSON != "":
		raw, err = base64.StdEncoding.DecodeString(item.B64JSON)
		if err != nil {
			return nil, fmt.Errorf("decode image data: %w", err)
		}
	case item.URL != "":
		raw, err = c.fetch(ctx, item.URL)
		if err != nil {
			return nil, fmt.Errorf("fetch image: %w", err)
		}
	default:
		return nil, fmt.Errorf("image result carries neither inline data nor a URL")
	}

	return &ImageResult{Bytes: raw, Description: description}, nil
}

func (c *ImagesClient) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &HTTPError{Status: resp.StatusCode, Body: string(body)}
	}
	return io.ReadAll(resp.Body)
}
