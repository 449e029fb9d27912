// Package web serves the websocket frame protocol and a small JSON API over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/gobwas/ws"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/scrabble/internal/config"
	"github.com/cory-johannsen/scrabble/internal/frontend/handlers"
	"github.com/cory-johannsen/scrabble/internal/game/session"
	"github.com/cory-johannsen/scrabble/internal/gameserver"
)

// requestTimeout bounds how long an HTTP handler waits on the coordinator.
const requestTimeout = 5 * time.Second

type api struct {
	base    context.Context
	coord   handlers.Coordinator
	adapter *handlers.Adapter
	logger  *zap.Logger
}

// NewRouter builds the HTTP handler. Websocket connections run until base
// is canceled or the client goes away.
//
// Precondition: coord, adapter and logger must be non-nil.
func NewRouter(base context.Context, cfg config.HTTPConfig, coord handlers.Coordinator, adapter *handlers.Adapter, logger *zap.Logger) http.Handler {
	a := api{base: base, coord: coord, adapter: adapter, logger: logger}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: false,
	}))
	r.Use(middleware.RealIP)
	if cfg.RequestsPerMinute > 0 {
		r.Use(httprate.Limit(cfg.RequestsPerMinute, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint)))
	}
	r.Use(middleware.Heartbeat("/ping"))
	r.Use(requestLogger(logger))

	r.Get("/ws", a.websocket)
	r.Get("/game/{gameUUID}/ws", a.websocket)

	r.Route("/games", func(r chi.Router) {
		r.Get("/", a.listGames)
		r.Post("/", a.createGame)
		r.Route("/{gameUUID}", func(r chi.Router) {
			r.Get("/", a.describeGame)
			r.Delete("/", a.removeGame)
			r.Get("/players", a.listPlayers)
		})
	})
	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}

func (a api) websocket(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.Nil
	if raw := chi.URLParam(r, "gameUUID"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid game id", http.StatusBadRequest)
			return
		}
		sessionID = id
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.logger.Warn("upgrading websocket", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}
	// Shutdown does not track hijacked connections; base is cancelled by Stop.
	if err := a.adapter.Serve(a.base, newWSTransport(conn), "websocket", r.RemoteAddr, sessionID); err != nil {
		a.logger.Debug("websocket ended", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
	}
}

func (a api) listGames(w http.ResponseWriter, r *http.Request) {
	a.do(w, r, gameserver.ListSessions{Origin: gameserver.NewOrigin("")}, http.StatusOK)
}

func (a api) createGame(w http.ResponseWriter, r *http.Request) {
	a.do(w, r, gameserver.CreateSession{Origin: gameserver.NewOrigin("")}, http.StatusCreated)
}

func (a api) describeGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	a.do(w, r, gameserver.DescribeSession{Origin: gameserver.NewOrigin(""), SessionID: id}, http.StatusOK)
}

func (a api) removeGame(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	a.do(w, r, gameserver.RemoveSession{Origin: gameserver.NewOrigin(""), SessionID: id}, http.StatusOK)
}

func (a api) listPlayers(w http.ResponseWriter, r *http.Request) {
	id, ok := gameID(w, r)
	if !ok {
		return
	}
	a.do(w, r, gameserver.ListPlayers{Origin: gameserver.NewOrigin(""), SessionID: id}, http.StatusOK)
}

func (a api) do(w http.ResponseWriter, r *http.Request, req gameserver.Request, okStatus int) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	resp, err := a.coord.Do(ctx, req)
	if err != nil {
		a.logger.Warn("coordinator unavailable", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, gameserver.Response{
			Error: &gameserver.ErrorBody{Code: handlers.CodeUnavailable, Message: "game server unavailable"},
		})
		return
	}
	writeJSON(w, statusFor(resp, okStatus), resp)
}

func gameID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "gameUUID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, gameserver.Response{
			Error: &gameserver.ErrorBody{Code: handlers.CodeBadRequest, Message: "invalid game id"},
		})
		return uuid.Nil, false
	}
	return id, true
}

func statusFor(resp gameserver.Response, okStatus int) int {
	if resp.OK() {
		return okStatus
	}
	switch resp.Error.Code {
	case session.ErrGameNotFound.Code, session.ErrPlayerNotRegistered.Code:
		return http.StatusNotFound
	case gameserver.CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusConflict
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
