// Package engines provides HTTP-backed implementations of the OCR and
// translation provider contracts (internal/ocr.Provider, internal/translate.Engine)
// against a configured engine's REST API. Engines differing in wire format
// (a local inference server, a different cloud vendor) implement the same
// two interfaces directly; this package only covers the common
// JSON-over-HTTP shape shared by the configured cloud engines.
package engines

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/mangatl/mangatl/internal/config"
	"github.com/mangatl/mangatl/internal/ocr"
	"github.com/mangatl/mangatl/internal/tracing"
	"github.com/mangatl/mangatl/internal/translate"
)

// newHTTPClient builds the pooled-transport client used for outbound
// engine calls: bounded idle connections, a dial timeout, and an overall
// request timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	return &http.Client{Transport: transport, Timeout: timeout}
}

// OCREngine calls a configured engine's `/v1/ocr` endpoint, implementing
// ocr.Provider.
type OCREngine struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewOCREngine constructs an OCREngine for one configured engine.
func NewOCREngine(engineID, baseURL, apiKey string, timeout time.Duration) *OCREngine {
	return &OCREngine{id: engineID, baseURL: baseURL, apiKey: apiKey, client: newHTTPClient(timeout)}
}

type ocrRequest struct {
	Image    []byte `json:"image"`
	Language string `json:"language,omitempty"`
	Model    string `json:"model,omitempty"`
}

type ocrResponse struct {
	Regions []ocr.TextRegion `json:"regions"`
	Error   string           `json:"error,omitempty"`
}

// Recognize implements ocr.Provider.
func (e *OCREngine) Recognize(ctx context.Context, imageBytes []byte, opts ocr.Options) ([]ocr.TextRegion, error) {
	ctx, span := tracing.StartEngineSpan(ctx, e.id, "ocr")
	defer span.End()

	body, err := json.Marshal(ocrRequest{Image: imageBytes, Language: opts.Language, Model: opts.Model})
	if err != nil {
		return nil, fmt.Errorf("engines: marshal ocr request: %w", err)
	}

	resp, err := e.post(ctx, "/v1/ocr", body)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	defer resp.Body.Close()

	var out ocrResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("engines: decode ocr response: %w", err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("engines: ocr engine %s: %s", e.id, out.Error)
	}
	return out.Regions, nil
}

// TranslateEngine calls a configured engine's `/v1/translate` endpoint,
// implementing translate.Engine. A response carrying `sensitive: true` is
// surfaced as translate.ErrSensitiveContent so the caller falls back
// instead of retrying.
type TranslateEngine struct {
	id      string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewTranslateEngine constructs a TranslateEngine for one configured engine.
func NewTranslateEngine(engineID, baseURL, apiKey string, timeout time.Duration) *TranslateEngine {
	return &TranslateEngine{id: engineID, baseURL: baseURL, apiKey: apiKey, client: newHTTPClient(timeout)}
}

// ID implements translate.Engine.
func (e *TranslateEngine) ID() string { return e.id }

type translateRequest struct {
	Texts      []string `json:"texts"`
	TargetLang string   `json:"target_lang"`
}

type translateResponse struct {
	Translations []string `json:"translations"`
	Sensitive    bool     `json:"sensitive,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// TranslateBatch implements translate.Engine.
func (e *TranslateEngine) TranslateBatch(ctx context.Context, texts []string, targetLang string) ([]string, error) {
	ctx, span := tracing.StartEngineSpan(ctx, e.id, "translate")
	defer span.End()

	body, err := json.Marshal(translateRequest{Texts: texts, TargetLang: targetLang})
	if err != nil {
		return nil, fmt.Errorf("engines: marshal translate request: %w", err)
	}

	resp, err := e.post(ctx, "/v1/translate", body)
	if err != nil {
		tracing.RecordError(ctx, err)
		return nil, err
	}
	defer resp.Body.Close()

	var out translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("engines: decode translate response: %w", err)
	}
	if out.Sensitive {
		return nil, translate.ErrSensitiveContent
	}
	if out.Error != "" {
		return nil, fmt.Errorf("engines: translate engine %s: %s", e.id, out.Error)
	}
	return out.Translations, nil
}

func (e *OCREngine) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	return postJSON(ctx, e.client, e.baseURL+path, e.apiKey, body)
}

func (e *TranslateEngine) post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	return postJSON(ctx, e.client, e.baseURL+path, e.apiKey, body)
}

// NewOCREngineFromConfig builds an OCREngine from a configured engine
// entry plus its already-resolved API key.
func NewOCREngineFromConfig(engineID string, ec config.EngineConfig, apiKey string) *OCREngine {
	return NewOCREngine(engineID, ec.APIBase, apiKey, ec.TimeoutDuration())
}

// NewTranslateEngineFromConfig builds a TranslateEngine from a configured
// engine entry plus its already-resolved API key.
func NewTranslateEngineFromConfig(engineID string, ec config.EngineConfig, apiKey string) *TranslateEngine {
	return NewTranslateEngine(engineID, ec.APIBase, apiKey, ec.TimeoutDuration())
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("engines: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("engines: request to %s: %w", url, err)
	}
	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("engines: %s returned %d: %s", url, resp.StatusCode, msg)
	}
	return resp, nil
}
