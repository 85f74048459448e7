package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"multichat/internal/app"
)

func main() {
	addr := flag.String("addr", envOrDefault("MULTICHAT_ADDR", ":8080"), "server listen address")
	db := flag.String("db", envOrDefault("MULTICHAT_DB_PATH", ""), "sqlite database path")
	adminUser := flag.String("admin", envOrDefault("MULTICHAT_ADMIN", ""), "username allowed to clear chat history")
	uploadDir := flag.String("uploads", envOrDefault("MULTICHAT_UPLOAD_DIR", ""), "directory for uploaded files")
	flag.Parse()

	cfg := app.ServerConfig{
		Addr:      *addr,
		DBPath:    *db,
		AdminUser: *adminUser,
		UploadDir: *uploadDir,
	}
	if cfg.DBPath == "" {
		cfg.DBPath = app.DefaultDBPath()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := app.RunServer(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	log.Printf("Multichat server listening on %s (db %s)", handle.Addr(), cfg.DBPath)
	if err := handle.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
