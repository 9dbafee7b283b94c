package pipeline

import (
	"bytes"
	"context"
	"image/png"
	"time"

	"github.com/nguyennamkkb/Simpleverse-home/core"
	"github.com/nguyennamkkb/Simpleverse-home/settings"
)

// Input is one item's transform request.
type Input struct {
	Data     []byte
	Format   core.Format // declared media type; FormatUnknown sniffs
	Settings settings.Settings
}

// Output is a finished artifact.
type Output struct {
	Data   []byte
	Format core.Format
	Width  int
	Height int

	Params  settings.Params
	Elapsed time.Duration
}

// Transformer runs decode, render, encode and post-process for one item.
// It is stateless and safe for concurrent use.
type Transformer struct {
	proc *core.Processor
	post core.PostProcessor
}

// NewTransformer binds a Transformer to a processor (codecs, hooks,
// metrics) and an optional metadata post-processor.
func NewTransformer(proc *core.Processor, post core.PostProcessor) *Transformer {
	return &Transformer{proc: proc, post: post}
}

// Transform produces the artifact for in, or an error categorised as
// decode, encode, postprocess or pipeline.  No partial output is returned.
func (t *Transformer) Transform(ctx context.Context, in Input) (*Output, error) {
	start := time.Now()
	reg := t.proc.Registry()

	decoded, err := t.proc.Run(ctx, &core.ImageData{
		Data:         in.Data,
		Format:       in.Format,
		OriginalSize: int64(len(in.Data)),
	}, &DecodeStep{Registry: reg})
	if err != nil {
		return nil, err
	}
	src := decoded.Primary

	// Parameters are resolved against the decoded surface so presets see
	// the real dimensions even when probing failed at upload.
	params, err := settings.Resolve(in.Settings, settings.Source{
		Width:  src.Meta.Width,
		Height: src.Meta.Height,
		Size:   int64(len(in.Data)),
		Format: src.Format,
	})
	if err != nil {
		return nil, err
	}

	res, err := t.proc.Run(ctx, src,
		&RenderStep{Region: params.Region, Width: params.Width, Height: params.Height},
		&FormatStep{Format: params.Format},
		&EncodeStep{Registry: reg, Options: core.EncodeOptions{
			Quality:   params.Quality,
			StripEXIF: params.StripMetadata,
		}},
		&PostProcessStep{Post: t.post, StripEXIF: params.StripMetadata},
	)
	if err != nil {
		return nil, err
	}

	out := res.Primary
	w, h := out.Meta.Width, out.Meta.Height
	if out.Format == core.FormatTinyPNG {
		// The size bound may have shrunk the image during encode.
		if cfg, err := png.DecodeConfig(bytes.NewReader(out.Data)); err == nil {
			w, h = cfg.Width, cfg.Height
		}
	}
	return &Output{
		Data:    out.Data,
		Format:  out.Format,
		Width:   w,
		Height:  h,
		Params:  params,
		Elapsed: time.Since(start),
	}, nil
}
