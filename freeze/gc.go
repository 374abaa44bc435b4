package freeze

import (
	"os"
	"strings"
	"time"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/log"
)

// CollectGarbage removes saved freeze frames in dir older than ttl and returns how many were removed.
// A non-positive ttl keeps everything.
func CollectGarbage(dir string, ttl time.Duration) int {
	if ttl <= 0 {
		return 0
	}

	fs := filesystem.API()
	var removed int

	_ = fs.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !strings.HasPrefix(info.Name(), "frame-") {
			return nil
		}

		if time.Since(info.ModTime()) <= ttl {
			return nil
		}

		if err := fs.Remove(path); err != nil {
			log.Warnf("remove expired freeze frame %s: %v", path, err)
			return nil
		}
		removed++
		return nil
	})

	if removed > 0 {
		log.Infof("removed %d expired freeze frames", removed)
	}
	return removed
}
