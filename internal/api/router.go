// Package api exposes the diary service over HTTP.
package api

import (
	"context"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onionlab/onion/internal/api/recovery"
	"github.com/onionlab/onion/internal/diary"
	"github.com/onionlab/onion/internal/lifemap"
	"github.com/onionlab/onion/internal/music"
	"github.com/onionlab/onion/internal/profile"
)

// Transcriber extracts text from a diary photo.
type Transcriber interface {
	Transcribe(ctx context.Context, image []byte, mimeType string) (string, error)
}

// Deps are the services the router dispatches to.
type Deps struct {
	Diaries  *diary.Manager
	Profiles *profile.Service
	LifeMaps *lifemap.Generator
	Musics   *music.Catalog
	Scanner  Transcriber
	Health   HealthReporter
}

const idPattern = "{diaryId:[0-9a-fA-F-]{36}}"

// NewRouter creates the HTTP router with all API routes.
func NewRouter(d Deps) *mux.Router {
	router := mux.NewRouter()

	router.Use(recovery.Middleware)
	router.Use(metricsMiddleware)

	healthHandler := NewHealthHandler(d.Health)
	profileHandler := NewProfileHandler(d.Profiles)
	diaryHandler := NewDiaryHandler(d.Diaries)
	lifeMapHandler := NewLifeMapHandler(d.LifeMaps)
	scanHandler := NewScanHandler(d.Scanner)
	musicHandler := NewMusicHandler(d.Musics)

	router.HandleFunc("/api/health", healthHandler.CheckHealth).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	router.HandleFunc("/api/users/{userId}/profile", profileHandler.EnsureProfile).Methods("POST")
	router.HandleFunc("/api/users/{userId}/profile", profileHandler.GetProfile).Methods("GET")

	router.HandleFunc("/api/users/{userId}/diaries/drafts", diaryHandler.SaveDraft).Methods("POST")
	router.HandleFunc("/api/users/{userId}/diaries", diaryHandler.Finalize).Methods("POST")
	router.HandleFunc("/api/users/{userId}/diaries", diaryHandler.ListDiaries).Methods("GET")
	router.HandleFunc("/api/users/{userId}/diaries/"+idPattern, diaryHandler.GetDiary).Methods("GET")
	router.HandleFunc("/api/users/{userId}/diaries/"+idPattern, diaryHandler.UpdateDiary).Methods("PATCH")
	router.HandleFunc("/api/users/{userId}/diaries/"+idPattern, diaryHandler.DeleteDiary).Methods("DELETE")

	router.HandleFunc("/api/users/{userId}/life-map", lifeMapHandler.Generate).Methods("POST")
	router.HandleFunc("/api/users/{userId}/life-map", lifeMapHandler.Latest).Methods("GET")

	router.HandleFunc("/api/scan-diary", scanHandler.Scan).Methods("POST")

	router.HandleFunc("/api/musics", musicHandler.AddMusic).Methods("POST")
	router.HandleFunc("/api/musics", musicHandler.ListMusics).Methods("GET")

	return router
}
