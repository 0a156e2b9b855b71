package gateway

import (
	"log"
	"sync"

	"github.com/google/uuid"

	"github.com/codelink/server/internal/auth"
	"github.com/codelink/server/internal/mirror"
	"github.com/codelink/server/internal/registry"
)

type event struct {
	client *Client
	frame  Frame
}

// Gateway translates socket events into registry operations and
// broadcasts. Every inbound event is processed to completion on the
// single Run loop before the next one is handled, which is what gives
// each room its broadcast ordering guarantee; the only asynchronous part
// is the mirror's fire-and-forget disk writes. The mutex exists for the
// HTTP API's read-only counters, not for the loop.
type Gateway struct {
	registry *registry.Registry
	mirror   *mirror.Store
	verifier auth.TokenVerifier // nil disables the authenticated layer

	register   chan *Client
	unregister chan *Client
	events     chan event

	mu      sync.RWMutex
	clients map[*Client]bool
	rooms   map[string]map[*Client]bool
}

func New(reg *registry.Registry, store *mirror.Store, verifier auth.TokenVerifier) *Gateway {
	return &Gateway{
		registry:   reg,
		mirror:     store,
		verifier:   verifier,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		events:     make(chan event, 64),
		clients:    make(map[*Client]bool),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (g *Gateway) Run() {
	for {
		select {
		case client := <-g.register:
			g.addClient(client)

		case client := <-g.unregister:
			g.dropClient(client)

		case ev := <-g.events:
			g.dispatch(ev.client, ev.frame)
		}
	}
}

func (g *Gateway) addClient(c *Client) {
	g.mu.Lock()
	g.clients[c] = true
	total := len(g.clients)
	g.mu.Unlock()

	log.Printf("Client %s connected (total: %d)", c.id, total)

	if c.authFailed {
		c.sendFrame(Frame{
			Event:   EventAuthError,
			Message: "Authentication failed: invalid token. Continuing as guest.",
		})
	}
}

// dropClient runs the transport-level disconnect path. Guarded by map
// membership so it happens exactly once per connection.
func (g *Gateway) dropClient(c *Client) {
	g.mu.RLock()
	connected := g.clients[c]
	g.mu.RUnlock()
	if !connected {
		return
	}

	if c.roomID != "" {
		g.leaveRoom(c, c.roomID)
	}

	g.mu.Lock()
	delete(g.clients, c)
	g.mu.Unlock()
	close(c.send)

	log.Printf("Client %s disconnected", c.id)
}

func (g *Gateway) dispatch(c *Client, f Frame) {
	g.mu.RLock()
	connected := g.clients[c]
	g.mu.RUnlock()
	if !connected {
		// Events already queued when the client was evicted
		return
	}

	switch f.Event {
	case EventJoinRoom:
		g.handleJoin(c, f)
	case EventLeaveRoom:
		g.handleLeave(c, f)
	case EventCodeChange:
		g.handleCodeChange(c, f)
	case EventLanguageChange:
		g.handleLanguageChange(c, f)
	case EventCursorActivity:
		g.handlePassthrough(c, f.RoomID, Frame{Event: EventCursorUpdate, Cursor: f.Cursor})
	case EventSelectionChange:
		g.handlePassthrough(c, f.RoomID, Frame{Event: EventSelectionUpdate, Selection: f.Selection})
	case EventInviteUser:
		g.handleInvite(c, f)
	default:
		log.Printf("Unknown event %q from client %s", f.Event, c.id)
	}
}

func (g *Gateway) handleJoin(c *Client, f Frame) {
	roomID := f.RoomID

	name := c.handle
	if name == "" {
		name = f.Username
	}
	if name == "" {
		name = "Guest"
	}

	if g.verifier != nil {
		if roomID == "" {
			// Owner-initiated session creation
			if !c.authenticated {
				c.sendFrame(Frame{Event: EventAuthError, Message: "You must be logged in to create a session."})
				return
			}
			roomID = uuid.NewString()
		}
		if !g.registry.CanJoin(roomID, c.userID) {
			c.sendFrame(Frame{Event: EventAuthError, Message: "You are not authorized to join this session."})
			return
		}
	} else if roomID == "" {
		c.sendFrame(Frame{Event: EventRoomError, Message: "Room ID is required."})
		return
	}

	// Joining a second room implicitly leaves the first
	if c.roomID != "" && c.roomID != roomID {
		g.leaveRoom(c, c.roomID)
	}

	created := !g.registry.Has(roomID)
	if g.verifier != nil && c.authenticated {
		g.registry.EnsureOwnedRoom(roomID, c.userID)
	} else {
		g.registry.EnsureRoom(roomID)
	}

	code, language := g.registry.Document(roomID)
	text, err := g.mirror.LoadOrInit(roomID, code)
	if err != nil {
		// Setup failure aborts this client's join only; others in the
		// room are unaffected.
		log.Printf("Mirror setup failed for room %s: %v", roomID, err)
		if created {
			g.registry.DestroyRoom(roomID)
		}
		c.sendFrame(Frame{Event: EventRoomError, Message: "Server error: could not set up room files."})
		return
	}
	if text != code {
		// Disk content is the authoritative initial state
		g.registry.SetDocument(roomID, text)
	}

	g.registry.AddParticipant(roomID, c.id, name)
	c.roomID = roomID
	c.displayName = name

	g.mu.Lock()
	if _, ok := g.rooms[roomID]; !ok {
		g.rooms[roomID] = make(map[*Client]bool)
	}
	g.rooms[roomID][c] = true
	g.mu.Unlock()

	log.Printf("User %s joined room %s", name, roomID)

	c.sendFrame(Frame{Event: EventInitialCode, RoomID: roomID, Code: text})
	c.sendFrame(Frame{Event: EventLanguageChangeUpdate, RoomID: roomID, Language: language, Code: text})
	g.broadcast(roomID, Frame{Event: EventUserList, RoomID: roomID, Users: g.registry.Participants(roomID)}, nil)
}

func (g *Gateway) handleLeave(c *Client, f Frame) {
	if c.roomID != f.RoomID {
		log.Printf("Client %s tried to leave room %s but is in %q", c.id, f.RoomID, c.roomID)
		return
	}
	g.leaveRoom(c, f.RoomID)
}

// leaveRoom removes the client from the room, notifies the remaining
// participants, and destroys the room (registry and mirror file) when it
// empties. Callers guarantee c.roomID == roomID.
func (g *Gateway) leaveRoom(c *Client, roomID string) {
	empty := g.registry.RemoveParticipant(roomID, c.id)
	c.roomID = ""

	g.mu.Lock()
	if members, ok := g.rooms[roomID]; ok {
		delete(members, c)
		if len(members) == 0 {
			delete(g.rooms, roomID)
		}
	}
	g.mu.Unlock()

	if empty {
		g.registry.DestroyRoom(roomID)
		g.mirror.Dispose(roomID)
		log.Printf("Room %s closed (empty)", roomID)
		return
	}

	g.broadcast(roomID, Frame{Event: EventUserList, RoomID: roomID, Users: g.registry.Participants(roomID)}, nil)
}

func (g *Gateway) handleCodeChange(c *Client, f Frame) {
	if c.roomID != f.RoomID {
		// Stale or cross-room message from a desynchronized client
		log.Printf("Dropping code-change for room %s from client %s (joined to %q)", f.RoomID, c.id, c.roomID)
		return
	}

	g.registry.SetDocument(f.RoomID, f.Code)
	g.mirror.Persist(f.RoomID, f.Code)
	g.broadcast(f.RoomID, Frame{Event: EventCodeUpdate, Code: f.Code, From: c.displayName}, c)
}

func (g *Gateway) handleLanguageChange(c *Client, f Frame) {
	if c.roomID != f.RoomID {
		log.Printf("Dropping language-change for room %s from client %s (joined to %q)", f.RoomID, c.id, c.roomID)
		return
	}

	g.registry.SetLanguage(f.RoomID, f.Language, f.Code)
	g.mirror.Persist(f.RoomID, f.Code)
	g.broadcast(f.RoomID, Frame{Event: EventLanguageChangeUpdate, Language: f.Language, Code: f.Code, From: c.displayName}, c)
}

// handlePassthrough relays ephemeral state (cursors, selections) to the
// rest of the room without touching the registry.
func (g *Gateway) handlePassthrough(c *Client, roomID string, out Frame) {
	if c.roomID != roomID {
		return
	}
	out.From = c.displayName
	g.broadcast(roomID, out, c)
}

func (g *Gateway) handleInvite(c *Client, f Frame) {
	if g.verifier == nil || !c.authenticated {
		c.sendFrame(Frame{Event: EventAuthError, Message: "You must be logged in to invite users."})
		return
	}

	owner, ok := g.registry.Owner(f.RoomID)
	if !ok || owner != c.userID {
		c.sendFrame(Frame{Event: EventAuthError, Message: "You can only invite users to sessions you own."})
		return
	}

	target := f.TargetUserID
	if target == "" || target == c.userID {
		c.sendFrame(Frame{Event: EventRoomError, Message: "Invalid invite request."})
		return
	}

	g.registry.Invite(f.RoomID, target)

	g.broadcast(f.RoomID, Frame{Event: EventInvitedUserList, RoomID: f.RoomID, Users: g.registry.Invited(f.RoomID)}, nil)

	// Notify any currently-connected session belonging to the target
	g.mu.RLock()
	for other := range g.clients {
		if other.userID == target {
			other.sendFrame(Frame{Event: EventYouAreInvited, RoomID: f.RoomID, From: c.displayName})
		}
	}
	g.mu.RUnlock()

	c.sendFrame(Frame{Event: EventInviteSent, RoomID: f.RoomID, TargetUserID: target})
}

// broadcast delivers a frame to every member of a room except the sender.
// Pass a nil sender to include everyone.
func (g *Gateway) broadcast(roomID string, f Frame, sender *Client) {
	g.mu.RLock()
	members := make([]*Client, 0, len(g.rooms[roomID]))
	for member := range g.rooms[roomID] {
		if member != sender {
			members = append(members, member)
		}
	}
	g.mu.RUnlock()

	for _, member := range members {
		member.sendFrame(f)
	}
}

// GetRoomCount reports the number of live rooms.
func (g *Gateway) GetRoomCount() int {
	return g.registry.RoomCount()
}

// GetClientCount reports the number of open connections.
func (g *Gateway) GetClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}

// GetActiveRooms maps room ID to participant count.
func (g *Gateway) GetActiveRooms() map[string]int {
	return g.registry.ActiveRooms()
}
