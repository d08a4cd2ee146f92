// Package analysis turns diary text into validated structured signals by
// calling the generative provider with credential rotation and bounded retry.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/provider"
	"github.com/onionlab/onion/internal/tags"
)

// Operation names used in logs, metrics and AnalysisError.
const (
	OpAnalyze    = "analyze"
	OpLifeMap    = "life_map"
	OpTranscribe = "transcribe"
)

const maxKeywords = 3

// ErrNoCredentials is returned by New when no API key is configured.
var ErrNoCredentials = errors.New("analysis: no provider credentials configured")

// Config controls retry behavior.
type Config struct {
	APIKeys        []string
	MaxAttempts    int           // outer rounds over the full credential list
	RetryDelay     time.Duration // initial wait between rounds
	CleanupTimeout time.Duration // budget for deleting uploaded files
}

// Invoker is the single entry point to the provider.
type Invoker struct {
	backend  provider.Backend
	cfg      Config
	validate *validator.Validate
	log      zerolog.Logger
}

// New constructs an Invoker. At least one API key is required.
func New(backend provider.Backend, cfg Config, log zerolog.Logger) (*Invoker, error) {
	keys := make([]string, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil, ErrNoCredentials
	}
	cfg.APIKeys = keys
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = 10 * time.Second
	}
	return &Invoker{
		backend:  backend,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      log.With().Str("component", "analysis").Logger(),
	}, nil
}

// Credentials returns the number of configured keys.
func (inv *Invoker) Credentials() int { return len(inv.cfg.APIKeys) }

// Analyze produces the per-entry snapshot. traits are the user's existing
// keywords, passed so the provider can reuse them.
func (inv *Invoker) Analyze(ctx context.Context, text string, traits []string) (*model.EntryAnalysis, error) {
	req := provider.Request{
		SystemInstruction: entrySystemPrompt,
		Parts:             []provider.Part{{Text: entryUserPrompt(text, traits)}},
		JSON:              true,
	}
	return invoke(ctx, inv, OpAnalyze, func(ctx context.Context, key string) (*model.EntryAnalysis, error) {
		raw, err := inv.backend.Generate(ctx, key, req)
		if err != nil {
			return nil, err
		}
		out, err := decodeJSON(OpAnalyze, raw, inv.validate, normalizeAnalysis)
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// SynthesizeLifeMap produces the long-form report from a rendered timeline.
func (inv *Invoker) SynthesizeLifeMap(ctx context.Context, timeline string, entryCount int) (*model.LifeMapResult, error) {
	req := provider.Request{
		SystemInstruction: lifeMapSystemPrompt(entryCount),
		Parts:             []provider.Part{{Text: timeline}},
		JSON:              true,
	}
	return invoke(ctx, inv, OpLifeMap, func(ctx context.Context, key string) (*model.LifeMapResult, error) {
		raw, err := inv.backend.Generate(ctx, key, req)
		if err != nil {
			return nil, err
		}
		out, err := decodeJSON[model.LifeMapResult](OpLifeMap, raw, inv.validate, nil)
		if err != nil {
			return nil, err
		}
		return &out, nil
	})
}

// Transcribe extracts text from a diary photo. The uploaded file is deleted
// after every attempt, including failed and canceled ones.
func (inv *Invoker) Transcribe(ctx context.Context, image []byte, mimeType string) (string, error) {
	if len(image) == 0 {
		return "", model.NewValidationError("file", "image is empty")
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return "", model.NewValidationError("file", "unsupported content type "+mimeType)
	}
	return invoke(ctx, inv, OpTranscribe, func(ctx context.Context, key string) (string, error) {
		f, err := inv.backend.UploadFile(ctx, key, image, mimeType, "diary-scan")
		if err != nil {
			return "", err
		}
		defer inv.deleteFile(ctx, key, f)

		text, err := inv.backend.Generate(ctx, key, provider.Request{
			SystemInstruction: transcribeSystemPrompt,
			Parts: []provider.Part{
				{FileURI: f.URI, MimeType: f.MimeType},
				{Text: "Transcribe this diary page."},
			},
		})
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(text), nil
	})
}

func (inv *Invoker) deleteFile(ctx context.Context, key string, f provider.File) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), inv.cfg.CleanupTimeout)
	defer cancel()
	if err := inv.backend.DeleteFile(cctx, key, f.Name); err != nil {
		fileCleanupFailures.Inc()
		inv.log.Warn().Err(err).Str("file", f.Name).Msg("uploaded file cleanup failed")
	}
}

// invoke runs call across MaxAttempts rounds of the credential list.
// Irrecoverable errors stop immediately; everything else moves to the next key.
func invoke[T any](ctx context.Context, inv *Invoker, op string, call func(context.Context, string) (T, error)) (T, error) {
	var zero T
	var lastErr error
	calls := 0

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = inv.cfg.RetryDelay
	bo.Multiplier = 2
	bo.MaxInterval = 30 * time.Second
	bo.Reset()

	for round := 1; round <= inv.cfg.MaxAttempts; round++ {
		for i, key := range inv.cfg.APIKeys {
			calls++
			start := time.Now()
			out, err := call(ctx, key)
			callDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
			if err == nil {
				callsTotal.WithLabelValues(op, outcomeSuccess).Inc()
				return out, nil
			}
			if ctx.Err() != nil {
				return zero, &model.AnalysisError{Operation: op, Attempts: calls, Err: ctx.Err()}
			}
			lastErr = err
			if provider.IsIrrecoverable(err) {
				callsTotal.WithLabelValues(op, outcomeIrrecoverable).Inc()
				inv.log.Error().Err(err).Str("op", op).Int("credential", i).Msg("provider rejected request")
				return zero, &model.AnalysisError{Operation: op, Attempts: calls, Err: err}
			}
			callsTotal.WithLabelValues(op, outcomeRetry).Inc()
			inv.log.Warn().Err(err).Str("op", op).Int("round", round).Int("credential", i).Msg("provider call failed, rotating credential")
		}

		if round == inv.cfg.MaxAttempts {
			break
		}
		t := time.NewTimer(bo.NextBackOff())
		select {
		case <-ctx.Done():
			t.Stop()
			return zero, &model.AnalysisError{Operation: op, Attempts: calls, Err: ctx.Err()}
		case <-t.C:
		}
	}

	callsTotal.WithLabelValues(op, outcomeExhausted).Inc()
	inv.log.Error().Err(lastErr).Str("op", op).Int("calls", calls).Msg("provider attempts exhausted")
	return zero, &model.AnalysisError{Operation: op, Attempts: calls, Err: fmt.Errorf("all credentials exhausted: %w", lastErr)}
}

func normalizeAnalysis(a *model.EntryAnalysis) {
	kw := tags.Normalize(a.Keywords)
	if len(kw) > maxKeywords {
		kw = kw[:maxKeywords]
	}
	a.Keywords = kw
	a.EventSummary = strings.TrimSpace(a.EventSummary)
	a.OneLiner = strings.TrimSpace(a.OneLiner)
}
