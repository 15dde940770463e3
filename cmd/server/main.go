package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"minikv/internal/server"
)

func main() {
	port := flag.Int("port", 6379, "Port to listen on")
	replicaOf := flag.String("replicaof", "", "Run as a replica of \"<host> <port>\"")
	flag.Parse()

	cfg := server.DefaultConfig()
	cfg.Port = *port

	if *replicaOf != "" {
		host, primaryPort, err := parseReplicaOf(*replicaOf)
		if err != nil {
			log.Fatalf("Invalid --replicaof value %q: %v", *replicaOf, err)
		}
		cfg.PrimaryHost = host
		cfg.PrimaryPort = primaryPort
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv, err := server.New(cfg)
	if err != nil {
		log.Fatalf("Startup failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down server...")
		cancel()
		srv.Shutdown()
	}()

	if err := srv.Start(ctx); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

// parseReplicaOf splits the "<host> <port>" flag value.
func parseReplicaOf(value string) (string, int, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return "", 0, strconv.ErrSyntax
	}
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return "", 0, err
	}
	return fields[0], port, nil
}
