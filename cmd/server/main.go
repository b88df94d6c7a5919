package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Tyrowin/jamroom/internal/server"
)

func main() {
	log.Println("Starting jam session relay...")

	config := server.NewConfigFromEnv().Sanitize()

	hub := server.NewHub(config)
	server.StartHub(hub)

	mux := server.SetupRoutes(hub)
	httpServer := server.CreateServer(config.Port, mux)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.StartServer(httpServer)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("Received signal %v", sig)
	case err := <-errCh:
		if err != nil {
			log.Printf("Server error: %v", err)
		}
	}

	if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
		log.Printf("Hub shutdown error: %v", err)
	}
	if err := server.ShutdownServer(httpServer, config.ShutdownTimeout); err != nil {
		log.Fatalf("Shutdown failed: %v", err)
	}
}
