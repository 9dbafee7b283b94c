package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/batch"
	"github.com/nguyennamkkb/Simpleverse-home/core"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

var (
	runPatch   string
	runOut     string
	runArchive bool
)

var runCmd = &cobra.Command{
	Use:   "run <tool> <file>...",
	Short: "Process files with one tool and save the results",
	Long: `Add the files to a fresh session of the tool, apply --patch to every item,
process them and save each result (or one zip with --archive) into --out.

Example:
  simpleverse run resize --patch '{"resize_mode":"percentage","percentage":50}' *.jpg`,
	Args: cobra.MinimumNArgs(2),
	RunE: runBatch,
}

func init() {
	runCmd.Flags().StringVarP(&runPatch, "patch", "p", "", "settings patch as JSON, applied to every item")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "output directory (overrides output_dir; default \".\")")
	runCmd.Flags().BoolVar(&runArchive, "archive", false, "save one zip archive instead of individual files")
	rootCmd.AddCommand(runCmd)
}

// parsePatch decodes a JSON settings patch.  Unknown fields are rejected so
// typos do not silently apply nothing.
func parsePatch(s string) (settings.Patch, error) {
	var p settings.Patch
	if strings.TrimSpace(s) == "" {
		return p, nil
	}
	dec := json.NewDecoder(strings.NewReader(s))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return p, fmt.Errorf("invalid --patch: %w", err)
	}
	if err := p.Validate(); err != nil {
		return p, fmt.Errorf("invalid --patch: %w", err)
	}
	return p, nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	tool, ok := simpleverse.ParseTool(args[0])
	if !ok {
		return fmt.Errorf("unknown tool %q (want one of %v)", args[0], simpleverse.Tools())
	}
	patch, err := parsePatch(runPatch)
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if runOut != "" {
		cfg.OutputDir = runOut
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "."
	}

	wb, err := newWorkbench(cfg, newLogger(cmd.ErrOrStderr(), cfg))
	if err != nil {
		return err
	}
	defer wb.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sess := wb.Session(tool)

	sources, err := readSources(args[1:])
	if err != nil {
		return err
	}
	if _, err := sess.Add(ctx, sources...); err != nil {
		return fmt.Errorf("add files: %w", err)
	}
	if err := sess.ApplyToAll(patch); err != nil {
		return err
	}

	if err := processWithProgress(ctx, cmd.ErrOrStderr(), sess, string(tool)); err != nil {
		return err
	}

	if runArchive {
		if err := sess.DownloadAll(ctx); err != nil {
			return fmt.Errorf("save archive: %w", err)
		}
	} else {
		for _, it := range sess.Items() {
			if err := sess.Download(ctx, it.ID); err != nil {
				return fmt.Errorf("save %s: %w", it.Name, err)
			}
		}
	}

	printSummary(cmd.OutOrStdout(), sess, cfg.OutputDir)
	if st := sess.Stats(); st.Failed > 0 {
		return fmt.Errorf("%d of %d files failed", st.Failed, st.Items)
	}
	return nil
}

// readSources loads every file up front; Add reads them fully anyway.
func readSources(paths []string) ([]core.Source, error) {
	sources := make([]core.Source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, core.Source{
			Reader: bytes.NewReader(data),
			Name:   filepath.Base(path),
			Size:   int64(len(data)),
		})
	}
	return sources, nil
}

// processWithProgress runs ProcessAll and polls the session's counters into
// a progress bar.
func processWithProgress(ctx context.Context, w io.Writer, sess *batch.Coordinator, desc string) error {
	bar := progressbar.NewOptions64(
		int64(sess.Len()),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionOnCompletion(func() { fmt.Fprint(w, "\n") }),
		progressbar.OptionSetRenderBlankState(true),
	)

	done := make(chan error, 1)
	go func() { done <- sess.ProcessAll(ctx) }()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case err := <-done:
			st := sess.Stats()
			_ = bar.Set64(int64(st.Completed + st.Failed))
			_ = bar.Finish()
			return err
		case <-ticker.C:
			st := sess.Stats()
			_ = bar.Set64(int64(st.Completed + st.Failed))
		}
	}
}

func printSummary(w io.Writer, sess *batch.Coordinator, dir string) {
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	dim := color.New(color.Faint)

	for _, it := range sess.Items() {
		switch {
		case it.Output != nil:
			ok.Fprint(w, "✓ ")
			fmt.Fprintf(w, "%s  %dx%d -> %dx%d  %s -> %s\n",
				batch.DownloadName(it),
				it.Width, it.Height, it.Output.Width, it.Output.Height,
				utils.FormatSize(it.Size), utils.FormatSize(it.Output.Size))
		case it.Status == batch.StatusError:
			bad.Fprint(w, "✗ ")
			fmt.Fprintf(w, "%s  %s\n", it.Name, it.Error)
		}
	}

	st := sess.Stats()
	dim.Fprintf(w, "%d completed, %d failed, %s -> %s (%d%% saved) in %s\n",
		st.Completed, st.Failed, st.OriginalSize, st.OutputSize, st.SavingsPercent, dir)
}
