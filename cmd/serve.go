package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/faceid"
	"github.com/kozaktomas/face-finder/internal/pipeline"
	"github.com/kozaktomas/face-finder/internal/scrape"
	"github.com/kozaktomas/face-finder/internal/session"
	"github.com/kozaktomas/face-finder/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the Face Finder web server.
The server exposes the JSON RPC operations for face detection, site
scraping, and result retrieval, plus a multipart upload endpoint.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
	serveCmd.Flags().String("session-secret", "", "Shared secret for the API (overrides WEB_SESSION_SECRET)")
}

// applyServeFlags lets command-line flags override the environment config.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if secret := mustGetString(cmd, "session-secret"); secret != "" {
		cfg.Web.SessionSecret = secret
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	applyServeFlags(cmd, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sites, err := scrape.LoadRegistry(cfg.Sites.File)
	if err != nil {
		return fmt.Errorf("loading site registry: %w", err)
	}
	fmt.Printf("Site registry loaded with %d site(s)\n", len(sites))

	recognizer := faceid.NewHTTPRecognizer(cfg.Recognizer.URL)
	engine := faceid.NewEngine(recognizer, cfg.Recognizer.ModelDir, cfg.Recognizer.Dim)

	initCtx, initCancel := context.WithTimeout(ctx, constants.ModelInitTimeout)
	err = engine.Init(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("initializing face engine: %w", err)
	}
	fmt.Printf("Face engine ready (%d-dimension embeddings)\n", engine.Dim())

	store := session.NewStore(cfg.Temp.Dir)
	store.Start()

	fetcher := scrape.NewClient()
	matchPipeline := pipeline.New(engine, cfg.Temp.Dir, pipeline.DefaultOptions())

	server := web.NewServer(cfg, engine, store, fetcher, matchPipeline, sites)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting Face Finder on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
