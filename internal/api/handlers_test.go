package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/codelink/server/internal/gateway"
	"github.com/codelink/server/internal/mirror"
	"github.com/codelink/server/internal/registry"
)

func setupTestAPI(t *testing.T) (*API, *registry.Registry) {
	t.Helper()

	store := mirror.New(filepath.Join(t.TempDir(), "mirrors"))
	t.Cleanup(store.Close)

	reg := registry.New()
	gw := gateway.New(reg, store, nil)
	go gw.Run()

	return New(gw, reg), reg
}

func TestHealthHandler(t *testing.T) {
	api, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	api.HealthHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["status"] != "ok" {
		t.Errorf("Expected status 'ok', got '%v'", response["status"])
	}
}

func TestStatsHandler(t *testing.T) {
	api, reg := setupTestAPI(t)

	reg.AddParticipant("room-1", "conn-a", "Alice")

	req := httptest.NewRequest("GET", "/api/stats", nil)
	w := httptest.NewRecorder()

	api.StatsHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var response map[string]any
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response["active_rooms"].(float64) != 1 {
		t.Errorf("Expected 1 active room, got %v", response["active_rooms"])
	}
	if _, ok := response["active_clients"]; !ok {
		t.Error("Response should contain 'active_clients'")
	}
}

func TestListRooms(t *testing.T) {
	api, reg := setupTestAPI(t)

	reg.AddParticipant("room-1", "conn-a", "Alice")
	reg.AddParticipant("room-1", "conn-b", "Bob")
	reg.AddParticipant("room-2", "conn-c", "Carol")

	req := httptest.NewRequest("GET", "/api/rooms", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var response struct {
		Rooms []map[string]any `json:"rooms"`
		Total int              `json:"total"`
	}
	if err := json.NewDecoder(w.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if response.Total != 2 {
		t.Errorf("Expected 2 rooms, got %d", response.Total)
	}
}

func TestGetRoom(t *testing.T) {
	api, reg := setupTestAPI(t)

	reg.AddParticipant("room-1", "conn-a", "Alice")
	reg.SetLanguage("room-1", "python", "print('hi')")

	req := httptest.NewRequest("GET", "/api/rooms/room-1", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var room RoomResponse
	if err := json.NewDecoder(w.Body).Decode(&room); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if room.ID != "room-1" {
		t.Errorf("Expected room-1, got %q", room.ID)
	}
	if room.Language != "python" {
		t.Errorf("Expected python, got %q", room.Language)
	}
	if room.Version != 1 {
		t.Errorf("Expected version 1, got %d", room.Version)
	}
	if len(room.Participants) != 1 || room.Participants[0] != "Alice" {
		t.Errorf("Expected [Alice], got %v", room.Participants)
	}
}

func TestGetRoomNotFound(t *testing.T) {
	api, _ := setupTestAPI(t)

	req := httptest.NewRequest("GET", "/api/rooms/missing", nil)
	w := httptest.NewRecorder()

	api.RoomsRouter(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestRoomsRouterMethodNotAllowed(t *testing.T) {
	api, _ := setupTestAPI(t)

	for _, method := range []string{"POST", "DELETE", "PUT"} {
		req := httptest.NewRequest(method, "/api/rooms/room-1", nil)
		w := httptest.NewRecorder()

		api.RoomsRouter(w, req)

		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected status 405, got %d", method, w.Code)
		}
	}
}
