package registry

import (
	"sync"
)

// Default content handed to a room that has never been edited.
const (
	DefaultLanguage = "javascript"
	DefaultCode     = "// Type your JavaScript code here\nfunction example() {\n \t// Start typing here...\n}\n"
)

type participant struct {
	connID string
	name   string
}

// A collaborative editing session. Document and language are overwritten
// unconditionally on every accepted edit: the last write wins, concurrent
// edits from two users can clobber each other. That is the documented
// conflict policy, not a bug. Version counts accepted writes so a future
// client could detect lost updates; nothing arbitrates on it today.
type room struct {
	id           string
	participants []participant
	code         string
	language     string
	version      uint64
	ownerID      string
	invited      []string
}

// Snapshot is a read-only copy of a room's state for callers outside
// the registry.
type Snapshot struct {
	ID           string
	Participants []string
	Code         string
	Language     string
	Version      uint64
	OwnerID      string
	Invited      []string
}

// Registry owns the process-wide room map. All mutation goes through its
// methods; the gateway additionally funnels every mutating call through a
// single event loop, so the lock here mainly protects the read-only HTTP
// API against concurrent access.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*room
}

func New() *Registry {
	return &Registry{
		rooms: make(map[string]*room),
	}
}

// Returns the existing room or creates one with default content. Idempotent.
func (r *Registry) EnsureRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(roomID)
}

// Like EnsureRoom but records an owner if the room is new. An existing
// room's owner is never reassigned.
func (r *Registry) EnsureOwnedRoom(roomID, ownerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rooms[roomID]; ok {
		return
	}
	rm := r.ensureLocked(roomID)
	rm.ownerID = ownerID
}

func (r *Registry) ensureLocked(roomID string) *room {
	if rm, ok := r.rooms[roomID]; ok {
		return rm
	}
	rm := &room{
		id:       roomID,
		code:     DefaultCode,
		language: DefaultLanguage,
	}
	r.rooms[roomID] = rm
	return rm
}

// Adds a participant, creating the room if needed. Re-joining with the
// same connection ID just refreshes the display name.
func (r *Registry) AddParticipant(roomID, connID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm := r.ensureLocked(roomID)
	for i := range rm.participants {
		if rm.participants[i].connID == connID {
			rm.participants[i].name = name
			return
		}
	}
	rm.participants = append(rm.participants, participant{connID: connID, name: name})
}

// Removes a participant and reports whether the room is now empty.
// Unknown rooms and unknown connections are no-ops.
func (r *Registry) RemoveParticipant(roomID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	for i := range rm.participants {
		if rm.participants[i].connID == connID {
			rm.participants = append(rm.participants[:i], rm.participants[i+1:]...)
			break
		}
	}
	return len(rm.participants) == 0
}

// Overwrites the room's document. Returns false if the room does not exist.
func (r *Registry) SetDocument(roomID, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	rm.code = code
	rm.version++
	return true
}

// Overwrites language and document together so a language switch never
// leaves the two out of step.
func (r *Registry) SetLanguage(roomID, language, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	rm.language = language
	rm.code = code
	rm.version++
	return true
}

// Returns the room's current document and language, or the defaults for an
// unknown room. Reads never fail.
func (r *Registry) Document(roomID string) (code, language string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return DefaultCode, DefaultLanguage
	}
	return rm.code, rm.language
}

// Participant display names in join order.
func (r *Registry) Participants(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	names := make([]string, len(rm.participants))
	for i, p := range rm.participants {
		names[i] = p.name
	}
	return names
}

func (r *Registry) Has(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

func (r *Registry) DestroyRoom(roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rooms, roomID)
}

// Owner returns the recorded owner of a room, if any.
func (r *Registry) Owner(roomID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok || rm.ownerID == "" {
		return "", false
	}
	return rm.ownerID, true
}

// Invite appends a user to the room's invite list. Reports false for an
// unknown room; inviting twice is a no-op.
func (r *Registry) Invite(roomID, userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	for _, id := range rm.invited {
		if id == userID {
			return true
		}
	}
	rm.invited = append(rm.invited, userID)
	return true
}

func (r *Registry) Invited(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	out := make([]string, len(rm.invited))
	copy(out, rm.invited)
	return out
}

// CanJoin reports whether a user may join the room. Rooms without a
// recorded owner are open to anyone; owned rooms admit the owner and
// invited users only.
func (r *Registry) CanJoin(roomID, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok || rm.ownerID == "" {
		return true
	}
	if rm.ownerID == userID {
		return true
	}
	for _, id := range rm.invited {
		if id == userID {
			return true
		}
	}
	return false
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// ActiveRooms maps room ID to participant count.
func (r *Registry) ActiveRooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	active := make(map[string]int, len(r.rooms))
	for id, rm := range r.rooms {
		active[id] = len(rm.participants)
	}
	return active
}

// Room returns a copy of the room's state, or nil if it does not exist.
func (r *Registry) Room(roomID string) *Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return nil
	}
	snap := &Snapshot{
		ID:       rm.id,
		Code:     rm.code,
		Language: rm.language,
		Version:  rm.version,
		OwnerID:  rm.ownerID,
	}
	snap.Participants = make([]string, len(rm.participants))
	for i, p := range rm.participants {
		snap.Participants[i] = p.name
	}
	snap.Invited = make([]string, len(rm.invited))
	copy(snap.Invited, rm.invited)
	return snap
}
