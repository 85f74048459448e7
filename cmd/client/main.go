package main

import (
	"flag"
	"fmt"
	"os"

	"multichat/internal/app"
)

func main() {
	defaultServer := envOrDefault("MULTICHAT_SERVER", "http://127.0.0.1:8080")
	defaultUser := envOrDefault("MULTICHAT_USER", "")

	serverURL := flag.String("server", defaultServer, "server base URL (e.g., http://localhost:8080)")
	username := flag.String("user", defaultUser, "default username for login prompts")
	adminUser := flag.String("admin", envOrDefault("MULTICHAT_ADMIN", ""), "username allowed to clear chat history")
	statePath := flag.String("state", envOrDefault("MULTICHAT_STATE_PATH", ""), "path for the local client state file")
	flag.Parse()

	cfg := app.ClientConfig{
		ServerURL: *serverURL,
		Username:  *username,
		AdminUser: *adminUser,
		StatePath: *statePath,
	}

	if err := app.RunClient(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
