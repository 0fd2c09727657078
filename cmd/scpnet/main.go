// ABOUTME: Terminal client for the SCPNET archive network
// ABOUTME: Handles identity, personnel, reports, comms, and dossier synthesis

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"

	"github.com/scpnet/scpnet-client/internal/config"
)

const banner = `
 ___  ___ _ __  _ __   ___| |_
/ __|/ __| '_ \| '_ \ / _ \ __|
\__ \ (__| |_) | | | |  __/ |_
|___/\___| .__/|_| |_|\___|\__|
         |_|    SECURE. CONTAIN. PROTECT.
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "help" || cmd == "-h" || cmd == "--help" {
		printUsage()
		return
	}

	ctx := context.Background()

	app, err := newApp(ctx)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	switch cmd {
	case "register":
		err = cmdRegister(ctx, app, args)
	case "login":
		err = cmdLogin(ctx, app, args)
	case "logout":
		err = cmdLogout(ctx, app)
	case "status":
		err = cmdStatus(ctx, app)
	case "personnel":
		err = cmdPersonnel(ctx, app, args)
	case "reports":
		err = cmdReports(ctx, app, args)
	case "chat":
		err = cmdChat(ctx, app, args)
	case "terminal":
		err = cmdTerminal(ctx, app)
	case "dossier":
		err = cmdDossier(ctx, app, args)
	case "simulate":
		err = cmdSimulate(ctx, app, args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: scpnet <command> [args]")
	fmt.Println()
	color.Yellow("Commands:")
	fmt.Println("  register <email> <name>     Request an SCPNET account")
	fmt.Println("  login <email>               Authenticate and cache the session")
	fmt.Println("  logout                      Drop the cached session")
	fmt.Println("  status                      Show link mode, identity, and clearance")
	fmt.Println("  personnel                   List visible personnel")
	fmt.Println("  personnel approve <id>      Approve a pending account (L5+)")
	fmt.Println("  personnel terminate <id>    Remove an account (L5+)")
	fmt.Println("  reports                     List visible reports")
	fmt.Println("  reports file                File a new report")
	fmt.Println("  reports delete <id>         Delete a report (author or L5+)")
	fmt.Println("  chat [message]              Read or post to the general channel")
	fmt.Println("  chat watch                  Stream live channel traffic")
	fmt.Println("  terminal                    Talk to the archive intelligence (L4+)")
	fmt.Println("  dossier <object-id>         Synthesize a containment file (L2+)")
	fmt.Println("  simulate <level|off>        Preview a lower clearance (O5 only)")
	fmt.Println()
	color.Yellow("Environment:")
	fmt.Println("  SCPNET_CONFIG        Config file path (default: ~/.scpnet/config.yaml)")
	fmt.Println("  SCPNET_ARCHIVE_KEY   Generative API key (overrides config)")
	fmt.Println()
}

// configDir returns ~/.scpnet, creating it on first use.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".scpnet")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
