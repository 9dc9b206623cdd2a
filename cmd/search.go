package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/kozaktomas/face-finder/internal/config"
	"github.com/kozaktomas/face-finder/internal/constants"
	"github.com/kozaktomas/face-finder/internal/faceid"
	"github.com/kozaktomas/face-finder/internal/guard"
	"github.com/kozaktomas/face-finder/internal/pipeline"
	"github.com/kozaktomas/face-finder/internal/scrape"
	"github.com/kozaktomas/face-finder/internal/similarity"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Search the configured sites for a face from an image",
	Long: `Search runs the full flow once from the command line: validate the
image, extract the primary face embedding, scrape the configured
sites, and scan candidate thumbnails for similar faces.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().Float64("threshold", constants.DefaultThreshold, "Minimum similarity score (0.1 to 1.0)")
	searchCmd.Flags().String("sites", "", "Path to a site registry file (defaults to the built-in registry)")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	threshold := mustGetFloat64(cmd, "threshold")
	if err := similarity.ValidateThreshold(threshold); err != nil {
		return err
	}

	sitesFile := mustGetString(cmd, "sites")
	if sitesFile == "" {
		sitesFile = cfg.Sites.File
	}
	sites, err := scrape.LoadRegistry(sitesFile)
	if err != nil {
		return fmt.Errorf("loading site registry: %w", err)
	}

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading image: %w", err)
	}
	if _, err := guard.ValidateImage(data, ""); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	recognizer := faceid.NewHTTPRecognizer(cfg.Recognizer.URL)
	engine := faceid.NewEngine(recognizer, cfg.Recognizer.ModelDir, cfg.Recognizer.Dim)

	initCtx, initCancel := context.WithTimeout(ctx, constants.ModelInitTimeout)
	err = engine.Init(initCtx)
	initCancel()
	if err != nil {
		return fmt.Errorf("initializing face engine: %w", err)
	}

	embedding, err := engine.GenerateEmbedding(ctx, data)
	if err != nil {
		return err
	}
	fmt.Printf("Extracted a %d-dimension face embedding\n", len(embedding))

	fmt.Printf("Fetching candidates from %d site(s)...\n", len(sites))
	fetched := scrape.NewClient().FetchAll(ctx, sites)
	for _, msg := range fetched.Errors {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	}
	if len(fetched.Candidates) == 0 {
		fmt.Println("No candidates found")
		return nil
	}

	bar := progressbar.NewOptions(len(fetched.Candidates),
		progressbar.OptionSetDescription("Scanning thumbnails"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("thumbnails"),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)

	opts := pipeline.DefaultOptions()
	opts.OnProgress = func(done, total int) {
		_ = bar.Set(done)
	}
	matchPipeline := pipeline.New(engine, cfg.Temp.Dir, opts)

	matches, stats, scanErrors, err := matchPipeline.Run(ctx, fetched.Candidates, embedding, threshold)
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}
	for _, msg := range scanErrors {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	}

	fmt.Printf("Scanned %d thumbnail(s): %d with faces, %d without, %d error(s)\n",
		stats.TotalProcessed, stats.FacesDetected, stats.NoFacesFound, stats.ProcessingErrors)

	if len(matches) == 0 {
		fmt.Printf("No matches at or above threshold %.2f\n", threshold)
		return nil
	}

	fmt.Printf("\n%d match(es):\n", len(matches))
	for _, m := range matches {
		fmt.Printf("  %.2f  %-30s  %s\n", similarity.RoundScore(m.Score), m.Title, m.VideoURL)
	}
	return nil
}
