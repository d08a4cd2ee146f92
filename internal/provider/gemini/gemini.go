// Package gemini implements provider.Backend on the Gemini REST API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/provider"
)

const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-3-flash-preview"

	apiKeyHeader = "x-goog-api-key"
)

// harmCategories are relaxed to BLOCK_NONE so diary content about distress
// is analyzed instead of refused.
var harmCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
	"HARM_CATEGORY_CIVIC_INTEGRITY",
}

// Config configures the Gemini client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client calls the Gemini generateContent and Files endpoints.
type Client struct {
	http  *resty.Client
	model string
	log   zerolog.Logger
}

var _ provider.Backend = (*Client)(nil)

// New constructs a Client. Empty config fields fall back to defaults.
func New(cfg Config, log zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	c := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)
	return &Client{http: c, model: cfg.Model, log: log.With().Str("component", "gemini").Logger()}
}

// Model returns the configured model name.
func (c *Client) Model() string { return c.model }

// wire types

type part struct {
	Text     string    `json:"text,omitempty"`
	FileData *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	FileURI  string `json:"fileUri"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type safetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type generationConfig struct {
	ResponseMimeType string `json:"responseMimeType,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	SafetySettings    []safetySetting  `json:"safetySettings"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
}

type fileResource struct {
	Name     string `json:"name"`
	URI      string `json:"uri"`
	MimeType string `json:"mimeType"`
}

type uploadResponse struct {
	File fileResource `json:"file"`
}

func buildRequest(req provider.Request) generateRequest {
	out := generateRequest{
		SafetySettings: make([]safetySetting, 0, len(harmCategories)),
	}
	for _, c := range harmCategories {
		out.SafetySettings = append(out.SafetySettings, safetySetting{Category: c, Threshold: "BLOCK_NONE"})
	}
	if req.SystemInstruction != "" {
		out.SystemInstruction = &content{Parts: []part{{Text: req.SystemInstruction}}}
	}
	parts := make([]part, 0, len(req.Parts))
	for _, p := range req.Parts {
		if p.FileURI != "" {
			parts = append(parts, part{FileData: &fileData{MimeType: p.MimeType, FileURI: p.FileURI}})
			continue
		}
		parts = append(parts, part{Text: p.Text})
	}
	out.Contents = []content{{Role: "user", Parts: parts}}
	if req.JSON {
		out.GenerationConfig.ResponseMimeType = "application/json"
	}
	return out
}

// Generate calls models/{model}:generateContent and returns the concatenated
// text of the first candidate.
func (c *Client) Generate(ctx context.Context, apiKey string, req provider.Request) (string, error) {
	const op = "generate"
	body := buildRequest(req)

	var out generateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(apiKeyHeader, apiKey).
		SetPathParam("model", c.model).
		SetBody(&body).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", provider.NewNetworkError(op, err)
	}
	if resp.StatusCode() != http.StatusOK {
		c.log.Debug().Int("status", resp.StatusCode()).Msg("generate non-200")
		return "", provider.NewHTTPError(resp.StatusCode(), resp.String(), op)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return "", provider.NewEmptyResponseError(op, "undecodable envelope")
	}
	if out.PromptFeedback != nil && out.PromptFeedback.BlockReason != "" {
		return "", provider.NewEmptyResponseError(op, out.PromptFeedback.BlockReason)
	}
	if len(out.Candidates) == 0 {
		return "", provider.NewEmptyResponseError(op, "no candidates")
	}
	var sb strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", provider.NewEmptyResponseError(op, out.Candidates[0].FinishReason)
	}
	return text, nil
}

// UploadFile sends raw bytes to the Files API.
func (c *Client) UploadFile(ctx context.Context, apiKey string, data []byte, mimeType, displayName string) (provider.File, error) {
	const op = "upload_file"
	if len(data) == 0 {
		return provider.File{}, provider.ClassifyHTTPError(http.StatusBadRequest, "", fmt.Errorf("%s: empty payload", op))
	}
	var out uploadResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(apiKeyHeader, apiKey).
		SetHeader("X-Goog-Upload-Protocol", "raw").
		SetHeader("X-Goog-Upload-File-Name", displayName).
		SetHeader("Content-Type", mimeType).
		SetBody(data).
		Post("/upload/v1beta/files")
	if err != nil {
		if ctx.Err() != nil {
			return provider.File{}, ctx.Err()
		}
		return provider.File{}, provider.NewNetworkError(op, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return provider.File{}, provider.NewHTTPError(resp.StatusCode(), resp.String(), op)
	}
	if err := json.Unmarshal(resp.Body(), &out); err != nil || out.File.Name == "" {
		return provider.File{}, provider.NewEmptyResponseError(op, "missing file handle")
	}
	f := provider.File{Name: out.File.Name, URI: out.File.URI, MimeType: out.File.MimeType}
	if f.MimeType == "" {
		f.MimeType = mimeType
	}
	return f, nil
}

// DeleteFile removes an uploaded file. name has the form "files/<id>".
func (c *Client) DeleteFile(ctx context.Context, apiKey, name string) error {
	const op = "delete_file"
	if !strings.HasPrefix(name, "files/") {
		return provider.ClassifyHTTPError(http.StatusBadRequest, "", fmt.Errorf("%s: invalid file name %q", op, name))
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(apiKeyHeader, apiKey).
		Delete("/v1beta/" + name)
	if err != nil {
		return provider.NewNetworkError(op, err)
	}
	switch resp.StatusCode() {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound:
		return nil
	}
	return provider.NewHTTPError(resp.StatusCode(), resp.String(), op)
}

// HealthPing fetches the model resource with the given key.
func (c *Client) HealthPing(ctx context.Context, apiKey string) error {
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader(apiKeyHeader, apiKey).
		SetPathParam("model", c.model).
		Get("/v1beta/models/{model}")
	if err != nil {
		return provider.NewNetworkError("health", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return provider.NewHTTPError(resp.StatusCode(), resp.String(), "health")
	}
	return nil
}
