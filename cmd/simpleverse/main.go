package main

import (
	"context"
	"fmt"
	"os"

	simpleverse "github.com/nguyennamkkb/Simpleverse-home"
	"github.com/nguyennamkkb/Simpleverse-home/adapters/vips"
	"github.com/nguyennamkkb/Simpleverse-home/cmd/simpleverse/commands"
	"github.com/nguyennamkkb/Simpleverse-home/config"
	"github.com/nguyennamkkb/Simpleverse-home/core"
)

func main() {
	if err := commands.Execute(context.Background(), vipsCodecs); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// vipsCodecs swaps in the libvips backend when the config asks for it.
func vipsCodecs(cfg config.Config) []simpleverse.Option {
	if cfg.Backend != config.BackendVips {
		return nil
	}
	backend := vips.NewBackend(vips.ConfigFrom(cfg))
	return []simpleverse.Option{simpleverse.WithCodecs(
		func(reg core.Registry) { vips.RegisterVipsBackend(reg, backend) },
		backend.Shutdown,
	)}
}
