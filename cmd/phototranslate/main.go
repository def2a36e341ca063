// phototranslate runs the photo translation core from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/adverant/nexus/phototranslate-worker/internal/app"
	"github.com/adverant/nexus/phototranslate-worker/internal/config"
	"github.com/adverant/nexus/phototranslate-worker/internal/geometry"
	"github.com/adverant/nexus/phototranslate-worker/internal/logging"
	"github.com/adverant/nexus/phototranslate-worker/internal/overlay"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
)

var (
	configPath string
	envFile    string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "phototranslate",
		Short: "Translate text in photos with cloud or on-device engines",
		Long: `phototranslate runs the photo translation core locally.

Commands:
  translate   Recognize and translate the text in one photo, print JSON
  packs       List, install or remove on-device language packs
  enqueue     Submit work to a running worker through the Redis queue
  voices      Pick a text-to-speech voice from the voice catalog`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
					return fmt.Errorf("failed to load %s: %w", envFile, err)
				}
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (default: $CONFIG_FILE)")
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env.phototranslate", "dotenv file to load before reading config")

	root.AddCommand(
		newTranslateCmd(),
		newPacksCmd(),
		newEnqueueCmd(),
		newVoicesCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "phototranslate %s (%s)\n", version, commit)
		},
	}
}

// loadConfig reads configuration and sets up logging for a command.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if _, err := logging.Setup(cfg.Env); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildCore loads configuration and wires a single-processor core.
func buildCore(ctx context.Context, preference string) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.Build(ctx, cfg, app.Options{Preference: preference, PoolSize: 1})
}

// signalContext is cancelled on Ctrl-C.
func signalContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	if timeout <= 0 {
		return ctx, stop
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	return tctx, func() {
		cancel()
		stop()
	}
}

// parseSize parses "WxH" into a size. An empty string is the zero size.
func parseSize(s string) (geometry.Size, error) {
	if s == "" {
		return geometry.Size{}, nil
	}
	w, h, ok := strings.Cut(strings.ToLower(s), "x")
	if !ok {
		return geometry.Size{}, fmt.Errorf("invalid size %q, want WIDTHxHEIGHT", s)
	}
	wf, err := strconv.ParseFloat(strings.TrimSpace(w), 64)
	if err != nil {
		return geometry.Size{}, fmt.Errorf("invalid width in %q: %w", s, err)
	}
	hf, err := strconv.ParseFloat(strings.TrimSpace(h), 64)
	if err != nil {
		return geometry.Size{}, fmt.Errorf("invalid height in %q: %w", s, err)
	}
	size := geometry.Size{W: wf, H: hf}
	if !size.Valid() {
		return geometry.Size{}, fmt.Errorf("size %q must be positive", s)
	}
	return size, nil
}

func parseViewport(s string) (*overlay.Viewport, error) {
	size, err := parseSize(s)
	if err != nil || s == "" {
		return nil, err
	}
	return &overlay.Viewport{W: size.W, H: size.H}, nil
}

// preferenceFlag maps --online/--offline to a mode preference.
func preferenceFlag(online, offline bool) (string, error) {
	switch {
	case online && offline:
		return "", fmt.Errorf("--online and --offline are mutually exclusive")
	case online:
		return "force_online", nil
	case offline:
		return "force_offline", nil
	}
	return "", nil
}

// imageSource splits --image into bytes or a URL.
func imageSource(arg string) ([]byte, string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") {
		return nil, arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image: %w", err)
	}
	return data, "", nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
