package wechat

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/harvester-dev/harvester/internal/model"
)

// MediaLocator carries the identifying tuple the media path resolver needs
// to probe fixed directory conventions under a messenger account's data
// root (spec §4.2).
type MediaLocator struct {
	Root        string // account data root
	ContactHash string
	YYYYMM      string
	LocalID     int64
	Filename    string
}

// ResolveMediaPath attempts to populate ref.Path in place, following the
// exact per-type directory conventions in spec §4.2. It never returns an
// error: an unresolved probe simply leaves Path empty so the MediaRef is
// still emitted (UnresolvedMedia is a per-record, locally recovered
// condition per spec §7).
func ResolveMediaPath(ref *model.MediaRef, loc MediaLocator) {
	switch ref.Type {
	case model.MediaFile:
		p := filepath.Join(loc.Root, "msg", "file", loc.YYYYMM, loc.Filename)
		if fileExists(p) {
			ref.Path = p
		}

	case model.MediaVideo:
		// Open question preserved verbatim (spec §9): video resolution
		// points at the containing month directory, not a specific file,
		// because no further DB join is available to pin down the exact
		// filename. Callers must treat Path for video as possibly a
		// directory, not a file.
		dir := filepath.Join(loc.Root, "msg", "video", loc.YYYYMM)
		if dirExists(dir) {
			ref.Path = dir
		}

	case model.MediaImage:
		pattern := filepath.Join(loc.Root, "cache", loc.YYYYMM, "Message", loc.ContactHash,
			"Thumb", fmt.Sprintf("%d_*_thumb.jpg", loc.LocalID))
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			ref.Path = matches[0]
		}
	}
}

func fileExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func dirExists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}
