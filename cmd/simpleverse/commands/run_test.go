package commands

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// execute runs the CLI with args, resetting flag state left by earlier runs.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cfgFile, verbose, noColor = filepath.Join(t.TempDir(), "missing.yaml"), false, true
	runPatch, runOut, runArchive = "", "", false

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(append([]string{"--config", cfgFile, "--no-color"}, args...))
	err := Execute(context.Background(), nil)
	return out.String(), err
}

func TestParsePatch(t *testing.T) {
	p, err := parsePatch("")
	require.NoError(t, err)
	assert.Equal(t, settings.Patch{}, p)

	p, err = parsePatch(`{"resize_mode":"percentage","percentage":50}`)
	require.NoError(t, err)
	require.NotNil(t, p.Percentage)
	assert.Equal(t, 50, *p.Percentage)
	assert.Equal(t, settings.ResizePercentage, *p.ResizeMode)

	_, err = parsePatch(`{"percentag":50}`)
	assert.Error(t, err, "unknown field")

	_, err = parsePatch(`{"aspect_ratio":"5:4"}`)
	assert.Error(t, err, "invalid enum")

	_, err = parsePatch(`{`)
	assert.Error(t, err)
}

func TestRun_SavesEachFile(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	a := writePNG(t, in, "a.png", 40, 20)
	b := writePNG(t, in, "b.png", 20, 40)

	stdout, err := execute(t, "run", "resize",
		"--patch", `{"resize_mode":"percentage","percentage":50}`,
		"--out", out, a, b)
	require.NoError(t, err)
	assert.Contains(t, stdout, "2 completed, 0 failed")

	for name, want := range map[string]image.Point{
		"simpleverse_resized_a.png": {20, 10},
		"simpleverse_resized_b.png": {10, 20},
	} {
		f, err := os.Open(filepath.Join(out, name))
		require.NoError(t, err, name)
		cfg, err := png.DecodeConfig(f)
		f.Close()
		require.NoError(t, err, name)
		assert.Equal(t, want, image.Pt(cfg.Width, cfg.Height), name)
	}
}

func TestRun_Archive(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	a := writePNG(t, in, "a.png", 16, 16)
	b := writePNG(t, in, "b.png", 16, 16)

	_, err := execute(t, "run", "crop", "--archive", "--out", out, a, b)
	require.NoError(t, err)

	matches, err := filepath.Glob(filepath.Join(out, "simpleverse_cropped_images_*.zip"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	zr, err := zip.OpenReader(matches[0])
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{"cropped_a.png", "cropped_b.png"}, names)
}

func TestRun_ReportsFailures(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	good := writePNG(t, in, "good.png", 8, 8)
	bad := filepath.Join(in, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	stdout, err := execute(t, "run", "compress", "--out", out, good, bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 files failed")
	assert.Contains(t, stdout, "processing failed")

	_, statErr := os.Stat(filepath.Join(out, "simpleverse_compressed_good.png"))
	assert.NoError(t, statErr)
}

func TestRun_UnknownTool(t *testing.T) {
	_, err := execute(t, "run", "sharpen", "x.png")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown tool"))
}
