package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/codelink/server/internal/api"
	"github.com/codelink/server/internal/auth"
	"github.com/codelink/server/internal/gateway"
	"github.com/codelink/server/internal/mirror"
	"github.com/codelink/server/internal/registry"
	"github.com/codelink/server/internal/userstore"
)

func main() {
	mirrorDir := os.Getenv("CODELINK_MIRROR_DIR")
	if mirrorDir == "" {
		mirrorDir = "./data/mirrors"
	}

	store := mirror.New(mirrorDir)
	reg := registry.New()

	// With a signing key the gateway runs the authenticated session layer
	// (owned rooms, invites); without one every room is open.
	var verifier auth.TokenVerifier
	var users *userstore.Store
	if jwtKey := os.Getenv("CODELINK_JWT_KEY"); jwtKey != "" {
		usersPath := os.Getenv("CODELINK_USERS_DB")
		if usersPath == "" {
			usersPath = "./data/users.db"
		}

		var err error
		users, err = userstore.Open(usersPath)
		if err != nil {
			log.Fatalf("Failed to open user store: %v", err)
		}
		verifier = auth.NewJWTVerifier(jwtKey, users)
		log.Println("Authenticated session layer enabled")
	} else {
		log.Println("No CODELINK_JWT_KEY set, running in open mode")
	}

	gw := gateway.New(reg, store, verifier)
	go gw.Run()

	apiHandler := api.New(gw, reg)

	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		gateway.ServeWS(gw, w, r)
	})

	http.HandleFunc("/health", apiHandler.HealthHandler)
	http.HandleFunc("/api/stats", apiHandler.StatsHandler)
	http.HandleFunc("/api/rooms", apiHandler.RoomsRouter)
	http.HandleFunc("/api/rooms/", apiHandler.RoomsRouter)

	handler := corsMiddleware(http.DefaultServeMux)

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Println("Shutting down server...")
		store.Close()
		if users != nil {
			users.Close()
		}
		os.Exit(0)
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Printf("Codelink server starting on :%s", port)
	log.Printf("Mirror directory: %s", mirrorDir)
	log.Println("Endpoints:")
	log.Println("  - WebSocket: /ws")
	log.Println("  - Health:    GET /health")
	log.Println("  - Stats:     GET /api/stats")
	log.Println("  - Rooms:     GET /api/rooms")
	log.Println("  - Room:      GET /api/rooms/{id}")

	if err := http.ListenAndServe(":"+port, handler); err != nil {
		log.Fatal("ListenAndServe: ", err)
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
