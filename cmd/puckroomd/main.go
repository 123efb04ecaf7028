package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/chilledoj/puckroom"
	"github.com/chilledoj/puckroom/config"
)

type (
	PlayerIdentifier = uuid.UUID
	RoomIdentifier   = string
)

func main() {
	configPath := flag.String("config", "", "path to a yaml, json or toml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(1)
	}
	logger, closer := config.NewLogger(cfg.Log, os.Stdout)
	defer closer.Close()
	slog.SetDefault(logger)

	codec, _ := cfg.ProtocolCodec()

	mainCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rooms := puckroom.NewManager[RoomIdentifier, PlayerIdentifier](mainCtx, puckroom.Options[PlayerIdentifier]{
		Settings: cfg.RoomSettings(),
		Codec:    codec,
		OnJoin: func(player PlayerIdentifier) {
			logger.Debug("player joined", "player", player)
		},
		OnLeave: func(player PlayerIdentifier) {
			logger.Debug("player left", "player", player)
		},
		Slogger: logger,
	})

	s := http.Server{
		Addr:    cfg.Addr,
		Handler: newRouter(rooms, cfg.SessionOptions()),
	}

	go func() {
		logger.Info("listening", "addr", cfg.Addr, "codec", codec.Name())
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen", "err", err)
			stop()
		}
	}()

	<-mainCtx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "err", err)
	}
	logger.Info("shutting down rooms")
	rooms.StopAll()
	logger.Info("shutdown complete")
}

func newRouter(rooms *puckroom.Manager[RoomIdentifier, PlayerIdentifier], sessionOpts puckroom.SessionOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	ids := cookieIdentity{}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		jsonResponse(w, http.StatusOK, map[string]any{"status": "ok", "rooms": rooms.Len()})
	})

	r.Route("/api/rooms", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			jsonResponse(w, http.StatusOK, rooms.List())
		})
		r.Post("/", func(w http.ResponseWriter, r *http.Request) {
			room := rooms.GetOrCreate(uuid.NewString())
			if room == nil {
				http.Error(w, puckroom.ErrRoomClosed.Error(), http.StatusServiceUnavailable)
				return
			}
			jsonResponse(w, http.StatusCreated, roomResponse(room))
		})
		r.Get("/{roomID}", func(w http.ResponseWriter, r *http.Request) {
			room, ok := rooms.Get(chi.URLParam(r, "roomID"))
			if !ok {
				http.Error(w, "room not found", http.StatusNotFound)
				return
			}
			jsonResponse(w, http.StatusOK, roomResponse(room))
		})
		r.Get("/{roomID}/ws", func(w http.ResponseWriter, r *http.Request) {
			room := rooms.GetOrCreate(chi.URLParam(r, "roomID"))
			if room == nil {
				http.Error(w, puckroom.ErrRoomClosed.Error(), http.StatusServiceUnavailable)
				return
			}
			room.HandleSocket(ids, sessionOpts, onError)(w, r)
		})
	})

	r.Get("/ws", func(w http.ResponseWriter, r *http.Request) {
		room := rooms.Match(uuid.NewString)
		if room == nil {
			http.Error(w, puckroom.ErrRoomClosed.Error(), http.StatusServiceUnavailable)
			return
		}
		room.HandleSocket(ids, sessionOpts, onError)(w, r)
	})

	return r
}

func onError(w http.ResponseWriter, r *http.Request, err error) {
	slog.Info("socket refused", "path", r.URL.Path, "err", err)
	http.Error(w, err.Error(), puckroom.StatusForError(err))
}

const identityCookie = "puckroom_id"

// cookieIdentity takes the participant id from the id query parameter or the identity cookie,
// and hands out a fresh one otherwise.
type cookieIdentity struct{}

func (cookieIdentity) GetPlayerIdFromRequest(w http.ResponseWriter, r *http.Request) PlayerIdentifier {
	if id, err := uuid.Parse(r.URL.Query().Get("id")); err == nil {
		return id
	}
	if c, err := r.Cookie(identityCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id
		}
	}
	id := uuid.New()
	http.SetCookie(w, &http.Cookie{Name: identityCookie, Value: id.String(), Path: "/", HttpOnly: true})
	return id
}

type playerResponse struct {
	ID          PlayerIdentifier `json:"id"`
	Name        string           `json:"name"`
	IsConnected bool             `json:"isConnected"`
	LastSeen    time.Time        `json:"lastSeen"`
}

type roomDetail struct {
	ID      RoomIdentifier   `json:"id"`
	Status  string           `json:"status"`
	Players []playerResponse `json:"players"`
}

func roomResponse(room *puckroom.Room[RoomIdentifier, PlayerIdentifier]) roomDetail {
	presences := room.GetPlayerPresences()
	players := make([]playerResponse, len(presences))
	for idx, p := range presences {
		players[idx] = playerResponse{ID: p.ID, Name: p.Name, IsConnected: p.IsConnected, LastSeen: p.LastSeen}
	}
	return roomDetail{
		ID:      room.ID,
		Status:  room.GetStatus().String(),
		Players: players,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	buf, err := json.Marshal(data)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(buf)
}
