package api

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/codelink/server/internal/gateway"
	"github.com/codelink/server/internal/registry"
)

// API serves read-only operational endpoints. Room lifecycle is owned by
// the socket path; nothing here mutates the registry.
type API struct {
	gateway  *gateway.Gateway
	registry *registry.Registry
}

func New(gw *gateway.Gateway, reg *registry.Registry) *API {
	return &API{
		gateway:  gw,
		registry: reg,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"active_rooms":   a.gateway.GetRoomCount(),
		"active_clients": a.gateway.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	})
}

type RoomResponse struct {
	ID           string   `json:"id"`
	Language     string   `json:"language"`
	Version      uint64   `json:"version"`
	Participants []string `json:"participants"`
	OwnerID      string   `json:"owner_id,omitempty"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	active := a.gateway.GetActiveRooms()

	rooms := make([]map[string]interface{}, 0, len(active))
	for id, count := range active {
		rooms = append(rooms, map[string]interface{}{
			"id":           id,
			"active_users": count,
		})
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"total": len(rooms),
	})
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	// Extract room ID from path: /api/rooms/{id}
	path := strings.TrimPrefix(r.URL.Path, "/api/rooms/")
	roomID := strings.TrimSuffix(path, "/")

	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return
	}

	room := a.registry.Room(roomID)
	if room == nil {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return
	}

	jsonResponse(w, http.StatusOK, RoomResponse{
		ID:           room.ID,
		Language:     room.Language,
		Version:      room.Version,
		Participants: room.Participants,
		OwnerID:      room.OwnerID,
	})
}

func (a *API) RoomsRouter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/rooms")

	// /api/rooms or /api/rooms/
	if path == "" || path == "/" {
		a.ListRoomsHandler(w, r)
		return
	}

	// /api/rooms/{id}
	a.GetRoomHandler(w, r)
}
