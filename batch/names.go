package batch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nguyennamkkb/Simpleverse-home/settings"
	"github.com/nguyennamkkb/Simpleverse-home/utils"
)

const (
	brand        = "simpleverse_"
	zipMediaType = "application/zip"
)

// entryName is the archive entry for an item: "<purpose>_<name>".  The
// converter has no purpose prefix: its entries and downloads are both
// "simpleverse_<base>.<ext>" with the extension of the target format.
func entryName(it Item) string {
	name := utils.SanitizeFilename(it.Name)
	if it.Settings.Kind == settings.KindConvert {
		if it.Output != nil {
			base, _ := utils.SplitExt(name)
			name = base + "." + it.Output.Format.Extension()
		}
		return brand + name
	}
	return it.Settings.Kind.Purpose() + "_" + name
}

// DownloadName is the single-file download name of an item, e.g.
// "simpleverse_resized_cat.png" or "simpleverse_cat.webp".
func DownloadName(it Item) string {
	if it.Settings.Kind == settings.KindConvert {
		return entryName(it)
	}
	return brand + entryName(it)
}

// ArchiveName is the download name of a packaged batch of one kind.
func ArchiveName(kind settings.Kind, at time.Time) string {
	if kind == settings.KindConvert {
		return fmt.Sprintf("converted-images-%d.zip", at.UnixMilli())
	}
	return fmt.Sprintf("%s%s_images_%d.zip", brand, kind.Purpose(), at.UnixMilli())
}

// MixedArchiveName names the archive of a session whose items switch
// between resize and crop.
func MixedArchiveName(at time.Time) string {
	return fmt.Sprintf("%simages_%d.zip", brand, at.UnixMilli())
}

// uniqueNames disambiguates repeated names with a _2, _3... suffix before
// the extension, keeping the first occurrence unchanged.
type uniqueNames map[string]bool

func (u uniqueNames) claim(name string) string {
	if !u[strings.ToLower(name)] {
		u[strings.ToLower(name)] = true
		return name
	}
	base, ext := utils.SplitExt(name)
	for n := 2; ; n++ {
		candidate := base + "_" + strconv.Itoa(n) + ext
		if !u[strings.ToLower(candidate)] {
			u[strings.ToLower(candidate)] = true
			return candidate
		}
	}
}

// Artifact is a named blob ready for delivery.
type Artifact struct {
	Name      string
	Data      []byte
	MediaType string
}

func artifactFor(it Item) Artifact {
	return Artifact{
		Name:      DownloadName(it),
		Data:      it.Output.Data,
		MediaType: it.Output.Format.MediaType(),
	}
}
