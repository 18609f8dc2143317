package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cardiolab/afdash/internal/upload"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "AFDash server URL (e.g. http://localhost:8080)")
	dir := flag.String("path", "", "directory containing record ZIP archives")
	mode := flag.String("mode", "detection", "analysis mode: prediction or detection")
	email := flag.String("email", "", "account email")
	password := flag.String("password", "", "account password (or set AFDASH_PASSWORD)")
	dryRun := flag.Bool("dry-run", false, "discover archives but don't send to server")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("afdash-upload", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: afdash-upload -server <URL> -email <email> -path <dir> [-mode prediction|detection] [-dry-run]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	if *mode != "prediction" && *mode != "detection" {
		fmt.Fprintf(os.Stderr, "Error: -mode must be prediction or detection\n")
		os.Exit(1)
	}
	if !*dryRun && (*serverURL == "" || *email == "") {
		fmt.Fprintf(os.Stderr, "Error: -server and -email are required (or use -dry-run)\n")
		os.Exit(1)
	}

	pass := *password
	if pass == "" {
		pass = os.Getenv("AFDASH_PASSWORD")
	}
	if !*dryRun && pass == "" {
		fmt.Fprintf(os.Stderr, "Error: -password or AFDASH_PASSWORD is required\n")
		os.Exit(1)
	}

	client := upload.NewClient(strings.TrimRight(*serverURL, "/"))
	if !*dryRun {
		if err := client.Login(*email, pass); err != nil {
			log.Error("login failed", "error", err)
			os.Exit(1)
		}
		log.Info("logged in", "email", *email)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Error("failed to get home directory", "error", err)
		os.Exit(1)
	}
	state, err := upload.OpenStateDB(filepath.Join(homeDir, ".afdash-upload"))
	if err != nil {
		log.Error("failed to open state db", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	u := upload.New(client, state, *dir, *mode, *dryRun, log)
	stats, err := u.Run()
	if err != nil {
		log.Error("upload failed", "error", err)
		os.Exit(1)
	}

	log.Info("done",
		"found", stats.Found,
		"uploaded", stats.Uploaded,
		"skipped", stats.Skipped,
		"errored", stats.Errored,
	)
	if stats.Errored > 0 {
		os.Exit(1)
	}
}
