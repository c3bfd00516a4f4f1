// Command imagecheck fact-checks a single image file and prints the verdict
// as JSON. Every result is also appended to the result log.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/factcheck-pro/backend/internal/factcheck"
	"github.com/factcheck-pro/backend/internal/gemini"
	"github.com/factcheck-pro/backend/internal/imageagent"
	"github.com/factcheck-pro/backend/internal/resultlog"
	"github.com/factcheck-pro/backend/pkg/config"
	"github.com/factcheck-pro/backend/pkg/logger"
)

type imageProcessor interface {
	ProcessImageFile(ctx context.Context, path, mimeType string) (*factcheck.RawResult, error)
}

var (
	logPath  string
	mimeType string
)

var rootCmd = &cobra.Command{
	Use:           "imagecheck <image_path>",
	Short:         "Fact-check the claims shown in an image",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			fmt.Fprintln(cmd.ErrOrStderr(), "Usage: imagecheck <image_path>")
			return errUsage
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Logging.Level, cfg.Logging.Format, "stderr"); err != nil {
			return err
		}
		defer logger.Sync()

		if logPath == "" {
			logPath = cfg.ResultLog.Path
		}
		timeout := time.Duration(cfg.Gemini.TimeoutSec) * time.Second
		agent := imageagent.New(gemini.NewClient(gemini.Config{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			BaseURL:     cfg.Gemini.BaseURL,
			Timeout:     timeout,
			MaxAttempts: cfg.Gemini.MaxAttempts,
		}), resultlog.New(logPath), timeout)

		return run(cmd.Context(), cmd.OutOrStdout(), agent, args[0], mimeType)
	},
}

var errUsage = errors.New("usage")

// errReported marks a failure whose JSON report has already been printed.
var errReported = errors.New("reported")

func init() {
	rootCmd.Flags().StringVar(&logPath, "log", "", "result log path (defaults to resultLog.path)")
	rootCmd.Flags().StringVar(&mimeType, "mime", "", "override the MIME type inferred from the file extension")
}

func run(ctx context.Context, out io.Writer, agent imageProcessor, path, mime string) error {
	if _, err := os.Stat(path); err != nil {
		writeJSON(out, map[string]string{"error": "Image file not found: " + path})
		return errReported
	}
	if mime == "" {
		mime = factcheck.MimeForFilename(path)
	}

	result, err := agent.ProcessImageFile(ctx, path, mime)
	if err != nil {
		writeJSON(out, map[string]string{"error": err.Error()})
		return errReported
	}

	writeJSON(out, result)
	return nil
}

func writeJSON(out io.Writer, v any) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, errReported) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
