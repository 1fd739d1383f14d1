package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/yegors/co-hud/internal/config"
	"github.com/yegors/co-hud/internal/observability"
	"github.com/yegors/co-hud/internal/websocket"
	"github.com/yegors/co-hud/pkg/logger"
)

// Router wires the handlers, the websocket endpoint and the HUD files
type Router struct {
	handler  *Handler
	static   http.Handler
	wsServer *websocket.Server
	metrics  *observability.Metrics
	config   *config.Config
	logger   *logger.Logger
}

// NewRouter creates the HTTP router
func NewRouter(speechControl SpeechControl, settingsStore SettingsStore, tracks TrackStore, wsServer *websocket.Server, metrics *observability.Metrics, cfg *config.Config, log *logger.Logger) *Router {
	return &Router{
		handler:  NewHandler(speechControl, settingsStore, tracks, wsServer, cfg, log),
		static:   NewStaticFileHandler(cfg.Server.StaticFilesDir, log),
		wsServer: wsServer,
		metrics:  metrics,
		config:   cfg,
		logger:   log.Named("router"),
	}
}

// Routes builds the chi mux
func (rt *Router) Routes() http.Handler {
	h := rt.handler
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(rt.requestLogger)
	r.Use(rt.cors)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.GetHealth)
		r.Get("/config", h.GetConfig)

		r.Route("/speech", func(r chi.Router) {
			r.Get("/", h.GetSpeechState)
			r.Post("/initialize", h.InitializeSpeech)
			r.Post("/start", h.StartSpeech)
			r.Post("/pause", h.PauseSpeech)
			r.Post("/stop", h.StopSpeech)
			r.Post("/toggle", h.ToggleSpeech)
			r.Put("/language", h.SetSpeechLanguage)
		})

		r.Get("/settings", h.ListSettings)
		r.Get("/settings/{key}", h.GetSetting)
		r.Put("/settings/{key}", h.PutSetting)

		r.Route("/tracks", func(r chi.Router) {
			r.Get("/recent", h.GetRecentTracks)
			r.Get("/current", h.GetCurrentTrack)
			r.Post("/", h.SaveTrack)
		})
	})

	r.Get("/ws", rt.wsServer.HandleConnection)

	if rt.config.Metrics.Enabled {
		r.Handle(rt.config.Metrics.Path, rt.metrics.Handler())
	}

	r.Handle("/*", rt.static)
	return r
}

func (rt *Router) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		rt.logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", ww.Status()),
			logger.Duration("duration", time.Since(start)),
			logger.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (rt *Router) cors(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(rt.config.Server.CORSAllowedOrigins))
	allowAll := false
	for _, origin := range rt.config.Server.CORSAllowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(origin, "/")] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
