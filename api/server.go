package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/Yquannn/multiplayer-phaser/game/coordinator"
	"github.com/Yquannn/multiplayer-phaser/game/room"
)

// RoomService is the part of the coordinator the REST API drives.
type RoomService interface {
	OpenRoom() string
	CloseRoom(roomID string) error
	Room(roomID string) (room.Room, error)
	Rooms() []room.Summary
	Stats() coordinator.Stats
}

// ConnectionHub serves WebSocket upgrades and reports live connections.
type ConnectionHub interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// StatsResponse is the body of GET /api/stats.
type StatsResponse struct {
	coordinator.Stats
	Connections int `json:"connections"`
}

// RoomList is the body of GET /api/rooms.
type RoomList struct {
	Count int            `json:"count"`
	Total int            `json:"total"`
	Order string         `json:"order"`
	Rooms []room.Summary `json:"rooms"`
}

// Server represents the REST API server
type Server struct {
	service   RoomService
	hub       ConnectionHub
	router    *mux.Router
	staticDir string
	logger    *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithStaticDir serves files from dir for every path not matched by the API.
func WithStaticDir(dir string) Option {
	return func(s *Server) {
		s.staticDir = dir
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new API server. hub may be nil, in which case /ws is
// not routed.
func NewServer(rooms RoomService, hub ConnectionHub, opts ...Option) *Server {
	s := &Server{
		service: rooms,
		hub:     hub,
		router:  mux.NewRouter(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	api := s.router.PathPrefix("/api").Subrouter()

	// Room management
	api.HandleFunc("/rooms", s.handleListRooms).Methods("GET")
	api.HandleFunc("/rooms", s.handleCreateRoom).Methods("POST")
	api.HandleFunc("/rooms/{id}", s.handleGetRoom).Methods("GET")
	api.HandleFunc("/rooms/{id}", s.handleDeleteRoom).Methods("DELETE")

	api.HandleFunc("/stats", s.handleStats).Methods("GET")

	s.router.HandleFunc("/healthz", s.handleHealth).Methods("GET")

	// WebSocket
	if s.hub != nil {
		s.router.HandleFunc("/ws", s.hub.ServeWS)
	}

	// Game client
	if s.staticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.staticDir)))
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", zap.String("method", r.Method), zap.String("path", r.URL.Path))
		next.ServeHTTP(w, r)
	})
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Room Handlers

func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	rooms := s.service.Rooms()

	// Parse query parameters
	query := r.URL.Query()
	order := query.Get("order") // "asc" (default), "desc"
	limitStr := query.Get("limit")

	if order == "" {
		order = "asc"
	}
	if order == "desc" {
		sort.SliceStable(rooms, func(i, j int) bool {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		})
	}

	total := len(rooms)
	if limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(rooms) {
			rooms = rooms[:l]
		}
	}

	respondJSON(w, http.StatusOK, RoomList{
		Count: len(rooms),
		Total: total,
		Order: order,
		Rooms: rooms,
	})
}

func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	roomID := s.service.OpenRoom()

	snapshot, err := s.service.Room(roomID)
	if err != nil {
		// A concurrent DELETE beat us to it.
		respondError(w, http.StatusConflict, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, snapshot)
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	snapshot, err := s.service.Room(roomID)
	if err != nil {
		s.respondRoomError(w, roomID, err)
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleDeleteRoom(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["id"]

	if err := s.service.CloseRoom(roomID); err != nil {
		s.respondRoomError(w, roomID, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Room %s deleted", roomID),
	})
}

func (s *Server) respondRoomError(w http.ResponseWriter, roomID string, err error) {
	if errors.Is(err, room.ErrRoomNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("room %s not found", roomID))
		return
	}
	s.logger.Error("room request failed", zap.String("room_id", roomID), zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

// Stats Handler

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	connections := 0
	if s.hub != nil {
		connections = s.hub.ClientCount()
	}

	respondJSON(w, http.StatusOK, StatsResponse{
		Stats:       s.service.Stats(),
		Connections: connections,
	})
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
