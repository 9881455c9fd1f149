// Package cmd provides CLI commands for chalssak.
//
// Commands:
//   - serve: HTTP API server with SSE streaming
//   - migrate: apply pending database migrations
//
// Signal handling and graceful shutdown are implemented
// via context cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
)

// Execute is the main entry point for the chalssak application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	switch os.Args[1] {
	case "serve":
		return runServe()
	case "migrate":
		return runMigrate()
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("chalssak - Document research notebook backend")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  chalssak serve [addr]  Start HTTP API server (default: 127.0.0.1:8000)")
	fmt.Println("  chalssak migrate       Apply pending database migrations")
	fmt.Println("  chalssak --version     Show version information")
	fmt.Println("  chalssak --help        Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required for serve: Gemini API key")
	fmt.Println("  DEBUG              Optional: Enable debug logging")
}
