package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/onionlab/onion/internal/bigfive"
	"github.com/onionlab/onion/internal/diary"
	"github.com/onionlab/onion/internal/lifemap"
	"github.com/onionlab/onion/internal/model"
	"github.com/onionlab/onion/internal/music"
	"github.com/onionlab/onion/internal/profile"
	"github.com/onionlab/onion/internal/quota"
	"github.com/onionlab/onion/internal/store/sqlstore"
)

type stubAnalyzer struct{ err error }

func (s *stubAnalyzer) Analyze(_ context.Context, text string, _ []string) (*model.EntryAnalysis, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &model.EntryAnalysis{
		Themes:    &model.Themes{Theme1: "a", Theme2: "b", Theme3: "c", Theme4: "d", Theme5: "e"},
		Recommend: &model.Recommendation{Head: "rest", Method1: &model.Method{Main: "walk", Content: "outside"}},
		OneLiner:  "fine",
		Keywords:  []string{"calm"},
		BigFive:   bigfive.Scores{"openness": {"imagination": 7}},
	}, nil
}

type stubSynth struct{}

func (stubSynth) SynthesizeLifeMap(context.Context, string, int) (*model.LifeMapResult, error) {
	return &model.LifeMapResult{
		DeepPatterns: model.TextList{"steady"},
		Seasonality:  "even",
		LifeKeywords: model.TextList{"calm"},
	}, nil
}

type stubScanner struct {
	gotMime string
	gotLen  int
}

func (s *stubScanner) Transcribe(_ context.Context, image []byte, mimeType string) (string, error) {
	s.gotMime, s.gotLen = mimeType, len(image)
	return "dear diary", nil
}

type stubHealth struct{ ok bool }

func (h stubHealth) IsHealthy() bool { return h.ok }
func (h stubHealth) Components() map[string]bool {
	return map[string]bool{"store": h.ok}
}

type fixture struct {
	router   http.Handler
	analyzer *stubAnalyzer
	scanner  *stubScanner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := sqlstore.Open(context.Background(), sqlstore.Options{Driver: sqlstore.DriverSQLite, SQLitePath: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	q := quota.NewTracker(2)
	f := &fixture{analyzer: &stubAnalyzer{}, scanner: &stubScanner{}}
	f.router = NewRouter(Deps{
		Diaries:  diary.NewManager(st, f.analyzer, nil, diary.Config{RecoveryDelay: time.Minute}, zerolog.Nop()),
		Profiles: profile.NewService(st, q),
		LifeMaps: lifemap.NewGenerator(st, stubSynth{}, q, lifemap.Config{MinEntries: 1}, zerolog.Nop()),
		Musics:   music.NewCatalog(st, zerolog.Nop()),
		Scanner:  f.scanner,
		Health:   stubHealth{ok: true},
	})
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func finalBody(content string) map[string]any {
	return map[string]any{
		"content":    content,
		"entry_date": "2026-01-10",
		"mood":       "calm",
		"weather":    "sunny",
		"tags":       []string{"home"},
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	mrec := httptest.NewRecorder()
	f.router.ServeHTTP(mrec, req)
	assert.Equal(t, http.StatusOK, mrec.Code)
	assert.Contains(t, mrec.Body.String(), "onion_http_requests_total")
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/users/alice/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["is_new"])

	rec, _ = f.do(t, http.MethodPost, "/api/users/alice/profile", nil)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/users/alice/profile", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_new"])
	assert.EqualValues(t, 2, body["life_map_limit"])
}

func TestInvalidUserID(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/users/bad$id/profile", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "userId", body["field"])
}

func TestDiaryLifecycle(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/users/bob/diaries", finalBody("a quiet day"))
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, "success", body["status"])
	id, _ := body["diary_id"].(string)
	require.NotEmpty(t, id)
	assert.NotNil(t, body["analysis"])

	rec, body = f.do(t, http.MethodGet, "/api/users/bob/diaries", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, body["count"])

	rec, body = f.do(t, http.MethodGet, "/api/users/bob/diaries/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a quiet day", body["content"])

	rec, _ = f.do(t, http.MethodPatch, "/api/users/bob/diaries/"+id, map[string]any{"tags": []string{"work"}})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = f.do(t, http.MethodGet, "/api/users/bob/profile", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"work": float64(1)}, body["tag_counts"])

	rec, _ = f.do(t, http.MethodDelete, "/api/users/bob/diaries/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/api/users/bob/diaries/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOtherUsersEntryIsNotFound(t *testing.T) {
	f := newFixture(t)

	_, body := f.do(t, http.MethodPost, "/api/users/bob/diaries", finalBody("mine"))
	id := body["diary_id"].(string)

	rec, _ := f.do(t, http.MethodGet, "/api/users/eve/diaries/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDraftsAreListedOnRequest(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/users/carol/diaries/drafts", map[string]any{"content": "half"})
	require.Equal(t, http.StatusOK, rec.Code, body)
	assert.Equal(t, true, body["is_temporary"])

	_, body = f.do(t, http.MethodGet, "/api/users/carol/diaries", nil)
	assert.EqualValues(t, 0, body["count"])
	_, body = f.do(t, http.MethodGet, "/api/users/carol/diaries?include_drafts=true", nil)
	assert.EqualValues(t, 1, body["count"])

	rec, body = f.do(t, http.MethodGet, "/api/users/carol/diaries?include_drafts=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "include_drafts", body["field"])
}

func TestDraftWithUnknownIDIsNotFound(t *testing.T) {
	f := newFixture(t)

	rec, _ := f.do(t, http.MethodPost, "/api/users/dan/diaries/drafts", map[string]any{
		"diary_id": "0b0e5c4e-3f43-4c59-9b53-7d7a3c1c9a11",
		"content":  "x",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRequestValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"bad uuid", map[string]any{"diary_id": "nope", "content": "x"}, "diary_id"},
		{"too many tags", map[string]any{"content": "x", "tags": strings.Split(strings.Repeat("t,", 21), ",")}, "tags"},
		{"bad image url", map[string]any{"content": "x", "image_url": "not a url"}, "image_url"},
		{"unknown field", map[string]any{"content": "x", "colour": "red"}, "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := f.do(t, http.MethodPost, "/api/users/erin/diaries/drafts", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, body["field"])
		})
	}

	rec, _ := f.do(t, http.MethodPost, "/api/users/erin/diaries", map[string]any{"content": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalysisFailureHidesDetails(t *testing.T) {
	f := newFixture(t)
	f.analyzer.err = &model.AnalysisError{Operation: "analyze", Attempts: 3, Err: errors.New("quota: key-123")}

	rec, body := f.do(t, http.MethodPost, "/api/users/fay/diaries", finalBody("x"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "analysis failed, please try again later", body["message"])
	assert.NotContains(t, rec.Body.String(), "key-123")

	_, body = f.do(t, http.MethodGet, "/api/users/fay/diaries", nil)
	assert.EqualValues(t, 0, body["count"])
}

func TestLifeMapEndpoints(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodGet, "/api/users/gus/life-map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "empty", body["status"])

	rec, body = f.do(t, http.MethodPost, "/api/users/gus/life-map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fail", body["status"])

	f.do(t, http.MethodPost, "/api/users/gus/diaries", finalBody("one"))

	for i := 0; i < 2; i++ {
		rec, body = f.do(t, http.MethodPost, "/api/users/gus/life-map", map[string]any{"period_months": 0})
		require.Equal(t, http.StatusOK, rec.Code, body)
		assert.Equal(t, "success", body["status"])
	}

	rec, body = f.do(t, http.MethodPost, "/api/users/gus/life-map", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.EqualValues(t, 2, body["count"])
	assert.EqualValues(t, 2, body["limit"])

	rec, body = f.do(t, http.MethodGet, "/api/users/gus/life-map", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	assert.NotNil(t, body["result"])

	rec, body = f.do(t, http.MethodPost, "/api/users/gus/life-map", map[string]any{"period_months": -1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "period_months", body["field"])
}

func TestScanDiary(t *testing.T) {
	f := newFixture(t)

	png := append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 64)...)
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "page.png")
	require.NoError(t, err)
	_, err = part.Write(png)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scan-diary", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"extracted_text":"dear diary"}`, rec.Body.String())
	assert.Equal(t, "image/png", f.scanner.gotMime)
	assert.Equal(t, len(png), f.scanner.gotLen)
}

func TestScanDiaryRequiresFile(t *testing.T) {
	f := newFixture(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/scan-diary", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMusicCatalogue(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(t, http.MethodPost, "/api/musics", map[string]any{
		"title": "Rain", "artist": "Kim", "url": "https://cdn.example/rain.mp3",
	})
	require.Equal(t, http.StatusCreated, rec.Code, body)
	assert.Equal(t, "success", body["status"])
	assert.NotEmpty(t, body["id"])

	rec, _ = f.do(t, http.MethodPost, "/api/musics", map[string]any{
		"title": "Birds", "artist": "Lee", "url": "https://cdn.example/birds.mp3", "category": "focus",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, body = f.do(t, http.MethodPost, "/api/musics", map[string]any{"title": "No url", "artist": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "url", body["field"])

	rec, body = f.do(t, http.MethodGet, "/api/musics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list, ok := body["musics"].([]any)
	require.True(t, ok)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	second := list[1].(map[string]any)
	assert.Equal(t, "Birds", first["title"])
	assert.Equal(t, "focus", first["category"])
	assert.Equal(t, "Rain", second["title"])
	assert.Equal(t, model.DefaultMusicCategory, second["category"])
}
