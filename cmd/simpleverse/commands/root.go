// Package commands implements the simpleverse CLI.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/hooks"
)

// CodecOptions returns extra workbench options for cfg, typically an
// alternative codec backend.  It may return nil.
type CodecOptions func(cfg config.Config) []simpleverse.Option

var (
	cfgFile string
	verbose bool
	noColor bool

	codecOptions CodecOptions
)

var rootCmd = &cobra.Command{
	Use:   "simpleverse",
	Short: "Batch image converter, compressor, resizer and cropper",
	Long: `simpleverse runs the image tools as an HTTP service with an optional
watched inbox folder, or processes files once from the command line.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.  codecs may be nil.
func Execute(ctx context.Context, codecs CodecOptions) error {
	codecOptions = codecs
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return cfg, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func newLogger(w io.Writer, cfg config.Config) *hooks.SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	return hooks.NewTextLogger(w, cfg.LogLevel)
}

func newWorkbench(cfg config.Config, logger *hooks.SlogLogger) (*simpleverse.Workbench, error) {
	opts := []simpleverse.Option{simpleverse.WithLogger(logger)}
	if codecOptions != nil {
		opts = append(opts, codecOptions(cfg)...)
	}
	wb, err := simpleverse.New(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init workbench: %w", err)
	}
	return wb, nil
}
