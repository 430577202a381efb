package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/photodesk/internal/auth"
	"github.com/zombor/photodesk/internal/camera"
	"github.com/zombor/photodesk/internal/classify"
	"github.com/zombor/photodesk/internal/decoder"
	"github.com/zombor/photodesk/internal/frame"
	"github.com/zombor/photodesk/internal/notify"
	"github.com/zombor/photodesk/internal/preview"
	"github.com/zombor/photodesk/internal/session"
	"github.com/zombor/photodesk/internal/upload"
	"github.com/zombor/photodesk/internal/web"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("photodesk")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		apiURL            = fs.StringLong("api-url", "http://localhost:3000", "Backend API base URL")
		dbPath            = fs.StringLong("db", "photodesk.db", "Credential database file path")
		cameraType        = fs.StringLong("camera", "directory", "Camera source: 'directory' or 'snapshot'")
		cameraDir         = fs.StringLong("camera-dir", "./frames", "Directory watched for frames (directory camera)")
		snapshotURL       = fs.StringLong("snapshot-url", "", "Snapshot URL returning the current frame (snapshot camera)")
		previewDir        = fs.StringLong("preview-dir", "", "Spool directory for previews (in memory when empty)")
		maxDimension      = fs.IntLong("max-dimension", frame.DefaultMaxDimension, "Longest side of a captured photo in pixels")
		quality           = fs.IntLong("quality", frame.DefaultQuality, "JPEG quality of captured photos")
		scanInterval      = fs.DurationLong("scan-interval", decoder.DefaultInterval, "Delay between QR decode attempts")
		scanTimeout       = fs.DurationLong("scan-timeout", decoder.DefaultTimeout, "Give up scanning after this long")
		uploadConcurrency = fs.IntLong("upload-concurrency", 0, "Maximum parallel uploads (0 sends the whole batch at once)")
		classifierType    = fs.StringLong("classifier", "none", "Document classifier: 'none', 'gemini' or 'ollama'")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", classify.DefaultGeminiModel, "Google Gemini model name")
		ollamaURL         = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel       = fs.StringLong("ollama-model", "llava", "Ollama model name (e.g., llava, llava-phi3, qwen2-vl)")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username for the local API (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password for the local API (optional)")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PHOTODESK"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Credential store
	slog.Info("Opening credential store...", "path", *dbPath)
	store, err := auth.NewBoltStore(*dbPath)
	if err != nil {
		slog.Error("Failed to open credential store", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	authClient := auth.NewClient(*apiURL, store, nil)

	// Camera
	var cam camera.Camera
	switch *cameraType {
	case "directory":
		slog.Info("Using directory camera", "path", *cameraDir)
		cam = camera.NewDirectory(*cameraDir)
	case "snapshot":
		if *snapshotURL == "" {
			slog.Error("Snapshot URL is required. Set --snapshot-url flag or PHOTODESK_SNAPSHOT_URL environment variable")
			os.Exit(1)
		}
		slog.Info("Using snapshot camera", "url", *snapshotURL)
		cam = camera.NewSnapshot(*snapshotURL)
	default:
		slog.Error("Invalid camera type", "type", *cameraType, "valid", "directory or snapshot")
		os.Exit(1)
	}

	// Preview spool
	var spool preview.Storage = preview.NewMemoryStorage()
	if *previewDir != "" {
		local, err := preview.NewLocalStorage(*previewDir)
		if err != nil {
			slog.Error("Failed to initialize preview storage", "error", err)
			os.Exit(1)
		}
		spool = local
	}
	previews := preview.NewRegistry(spool)

	feed := notify.NewFeed(notify.DefaultTTL)

	deps := session.Deps{
		Camera:   cam,
		Decoder:  decoder.NewQR(*scanInterval, *scanTimeout),
		Encoder:  frame.NewEncoder(*maxDimension, *quality),
		Previews: previews,
		Uploader: upload.NewCoordinator(upload.NewClient(*apiURL, nil), *uploadConcurrency),
		Auth:     authClient,
		Notifier: feed,
	}

	// Optional document classifier
	switch *classifierType {
	case "none", "":
	case "gemini":
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini classifier...", "model", *geminiModel)
		gemini, err := classify.NewGemini(apiKey, *geminiModel)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		deps.Classifier = gemini
	case "ollama":
		slog.Info("Initializing Ollama classifier...", "url", *ollamaURL, "model", *ollamaModel)
		ollama, err := classify.NewOllama(*ollamaURL, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer ollama.Close()
		deps.Classifier = ollama
	default:
		slog.Error("Invalid classifier type", "type", *classifierType, "valid", "none, gemini or ollama")
		os.Exit(1)
	}

	sess := session.New(deps)
	defer sess.Close()

	basicAuth := web.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := web.NewServer(sess, authClient, previews, feed, basicAuth)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version, "api", *apiURL)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	start := time.Now()
	if err := server.Start(ctx, addr); err != nil {
		slog.Error("Server error", "error", err)
		sess.Close()
		os.Exit(1)
	}
	slog.Info("Shutting down...", "uptime", time.Since(start).Round(time.Second))
}
