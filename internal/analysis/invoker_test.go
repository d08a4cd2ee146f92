package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/provider"
)

const validAnalysis = `{
  "event_summary": "회의에서 지적을 받음",
  "analysis": {"theme1": "a", "theme2": "b", "theme3": "c", "theme4": "d", "theme5": "e"},
  "recommend": {"head": "h", "method1": {"main": "m", "content": "c", "effect": "e"}},
  "one_liner": "괜찮아요",
  "keywords": ["#불안", " #불안", "#완벽주의", "#번아웃", "#extra"],
  "big5": {"openness": {"imagination": 7}}
}`

type fakeBackend struct {
	mu       sync.Mutex
	generate func(key string, req provider.Request) (string, error)
	upload   func(key string) (provider.File, error)
	keys     []string
	deleted  []string
	deleteFn func(ctx context.Context) error
}

func (f *fakeBackend) Generate(ctx context.Context, key string, req provider.Request) (string, error) {
	f.mu.Lock()
	f.keys = append(f.keys, key)
	f.mu.Unlock()
	return f.generate(key, req)
}

func (f *fakeBackend) UploadFile(ctx context.Context, key string, data []byte, mimeType, name string) (provider.File, error) {
	if f.upload != nil {
		return f.upload(key)
	}
	return provider.File{Name: "files/" + key, URI: "uri://" + key, MimeType: mimeType}, nil
}

func (f *fakeBackend) DeleteFile(ctx context.Context, key, name string) error {
	f.mu.Lock()
	f.deleted = append(f.deleted, name)
	f.mu.Unlock()
	if f.deleteFn != nil {
		return f.deleteFn(ctx)
	}
	return nil
}

func newInvoker(t *testing.T, b provider.Backend, keys ...string) *Invoker {
	t.Helper()
	inv, err := New(b, Config{APIKeys: keys, MaxAttempts: 3, RetryDelay: time.Millisecond}, zerolog.Nop())
	require.NoError(t, err)
	return inv
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(&fakeBackend{}, Config{APIKeys: []string{" ", ""}}, zerolog.Nop())
	require.ErrorIs(t, err, ErrNoCredentials)
}

func TestAnalyze_Success_NormalizesKeywords(t *testing.T) {
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		return "```json\n" + validAnalysis + "\n```", nil
	}}
	inv := newInvoker(t, b, "k1")

	out, err := inv.Analyze(context.Background(), "오늘은 힘들었다", []string{"#불안"})
	require.NoError(t, err)
	assert.Equal(t, []string{"#불안", "#완벽주의", "#번아웃"}, out.Keywords)
	assert.Equal(t, "a", out.Themes.Theme1)
	v, _ := out.BigFive.Get("openness", "imagination")
	assert.Equal(t, 7.0, v)
}

func TestAnalyze_RotatesCredentialsOnRecoverable(t *testing.T) {
	b := &fakeBackend{generate: func(key string, _ provider.Request) (string, error) {
		if key == "k1" {
			return "", provider.NewHTTPError(429, "quota", "generate")
		}
		return validAnalysis, nil
	}}
	inv := newInvoker(t, b, "k1", "k2")

	_, err := inv.Analyze(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, b.keys)
}

func TestAnalyze_SchemaFailureTriesNextCredential(t *testing.T) {
	b := &fakeBackend{generate: func(key string, _ provider.Request) (string, error) {
		if key == "k1" {
			return `{"analysis": {"theme1": "only one"}}`, nil
		}
		return validAnalysis, nil
	}}
	inv := newInvoker(t, b, "k1", "k2")

	_, err := inv.Analyze(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, b.keys)
}

func TestAnalyze_IrrecoverableFailsFast(t *testing.T) {
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		return "", provider.NewHTTPError(400, "bad request", "generate")
	}}
	inv := newInvoker(t, b, "k1", "k2")

	_, err := inv.Analyze(context.Background(), "text", nil)
	require.Error(t, err)
	var ae *model.AnalysisError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 1, ae.Attempts)
	assert.Equal(t, []string{"k1"}, b.keys)
}

func TestAnalyze_ExhaustsAllRoundsAndKeys(t *testing.T) {
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		return "", provider.NewHTTPError(503, "", "generate")
	}}
	inv := newInvoker(t, b, "k1", "k2")

	_, err := inv.Analyze(context.Background(), "text", nil)
	require.Error(t, err)
	assert.True(t, model.IsAnalysisError(err))
	assert.Len(t, b.keys, 6)
}

func TestAnalyze_InvalidJSONEverywhere(t *testing.T) {
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		return "I cannot help with that", nil
	}}
	inv := newInvoker(t, b, "k1")

	_, err := inv.Analyze(context.Background(), "text", nil)
	require.Error(t, err)
	var se *SchemaError
	assert.True(t, errors.As(err, &se))
}

func TestAnalyze_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		cancel()
		return "", fmt.Errorf("boom")
	}}
	inv := newInvoker(t, b, "k1", "k2")

	_, err := inv.Analyze(ctx, "text", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Len(t, b.keys, 1)
}

func TestAnalyze_PromptCarriesTraits(t *testing.T) {
	var got provider.Request
	b := &fakeBackend{generate: func(_ string, req provider.Request) (string, error) {
		got = req
		return validAnalysis, nil
	}}
	inv := newInvoker(t, b, "k1")
	_, err := inv.Analyze(context.Background(), "diary", []string{"#불안", "#번아웃"})
	require.NoError(t, err)
	assert.True(t, got.JSON)
	assert.Contains(t, got.Parts[0].Text, "User Traits (Context): #불안, #번아웃")
}

func TestSynthesizeLifeMap(t *testing.T) {
	var prompt string
	b := &fakeBackend{generate: func(_ string, req provider.Request) (string, error) {
		prompt = req.SystemInstruction
		return `{"deep_patterns": "반복되는 회피", "seasonality": "겨울", "life_keywords": ["#성장"], "major_events_timeline": [{"date": "2024-01-01", "title": "t"}]}`, nil
	}}
	inv := newInvoker(t, b, "k1")

	out, err := inv.SynthesizeLifeMap(context.Background(), "[2024-01-01] ...", 4)
	require.NoError(t, err)
	assert.Equal(t, model.TextList{"반복되는 회피"}, out.DeepPatterns)
	assert.NotEmpty(t, out.MajorEventsTimeline)
	assert.Contains(t, prompt, "short-term changes")

	_, err = inv.SynthesizeLifeMap(context.Background(), "x", 25)
	require.NoError(t, err)
	assert.Contains(t, prompt, "deep recurring patterns")
}

func TestSynthesizeLifeMap_MissingRequiredField(t *testing.T) {
	b := &fakeBackend{generate: func(string, provider.Request) (string, error) {
		return `{"seasonality": "겨울"}`, nil
	}}
	inv := newInvoker(t, b, "k1")
	_, err := inv.SynthesizeLifeMap(context.Background(), "x", 3)
	require.Error(t, err)
}

func TestTranscribe_AlwaysDeletesUpload(t *testing.T) {
	b := &fakeBackend{generate: func(key string, req provider.Request) (string, error) {
		if key == "k1" {
			return "", provider.NewHTTPError(500, "", "generate")
		}
		require.Equal(t, "uri://k2", req.Parts[0].FileURI)
		return "  page text \n", nil
	}}
	inv := newInvoker(t, b, "k1", "k2")

	text, err := inv.Transcribe(context.Background(), []byte{1, 2, 3}, "image/png")
	require.NoError(t, err)
	assert.Equal(t, "page text", text)
	assert.Equal(t, []string{"files/k1", "files/k2"}, b.deleted)
}

func TestTranscribe_CleanupSurvivesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var cleanupCtxErr error
	b := &fakeBackend{
		generate: func(string, provider.Request) (string, error) {
			cancel()
			return "", context.Canceled
		},
		deleteFn: func(ctx context.Context) error {
			cleanupCtxErr = ctx.Err()
			return nil
		},
	}
	inv := newInvoker(t, b, "k1")

	_, err := inv.Transcribe(ctx, []byte{1}, "image/jpeg")
	require.Error(t, err)
	require.Len(t, b.deleted, 1)
	assert.NoError(t, cleanupCtxErr)
}

func TestTranscribe_RejectsNonImage(t *testing.T) {
	inv := newInvoker(t, &fakeBackend{}, "k1")
	_, err := inv.Transcribe(context.Background(), []byte("x"), "application/pdf")
	assert.True(t, model.IsValidationError(err))
	_, err = inv.Transcribe(context.Background(), nil, "image/png")
	assert.True(t, model.IsValidationError(err))
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("  {\"a\":1} "))
	assert.Equal(t, `{"a":1}`, extractObject(`Here you go: {"a":1} thanks`))
	assert.True(t, strings.HasPrefix(lifeMapSystemPrompt(1), "Role"))
}
