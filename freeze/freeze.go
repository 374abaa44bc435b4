// Package freeze keeps the last good frame of a live player while no player is rendering,
// so the surface can show a still image instead of going blank between attempts.
package freeze

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/log"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/samber/mo"
)

// ErrEmpty is returned by Save when no image is held.
var ErrEmpty = errors.New("no freeze frame held")

// Image is an encoded still frame.
type Image struct {
	Format     string
	Quality    int
	Data       []byte
	CapturedAt time.Time
}

// Unit holds at most one Image.
type Unit struct {
	format  string
	quality int
	now     func() time.Time

	mu   sync.Mutex
	held mo.Option[Image]
}

// New returns an empty Unit capturing with the given encoding.
func New(format string, quality int) *Unit {
	return &Unit{
		format:  format,
		quality: quality,
		now:     time.Now,
		held:    mo.None[Image](),
	}
}

// CaptureIfAbsent asks h for a still frame unless one is already held, so a valid
// freeze frame is never replaced by a blank or transitional one.
// It reports whether an image is held afterwards.
func (u *Unit) CaptureIfAbsent(h player.Handle) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.held.IsPresent() {
		return true
	}

	if h == nil {
		return false
	}

	data, err := h.Snapshot(u.format, u.quality)
	if err != nil {
		log.Warnf("freeze frame capture failed (player %s): %v", h.Status(), err)
		return false
	}
	if len(data) == 0 {
		log.Warnf("freeze frame capture returned no data (player %s)", h.Status())
		return false
	}

	u.held = mo.Some(Image{
		Format:     u.format,
		Quality:    u.quality,
		Data:       data,
		CapturedAt: u.now(),
	})
	return true
}

// Clear drops the held image and reports whether there was one.
func (u *Unit) Clear() bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	had := u.held.IsPresent()
	u.held = mo.None[Image]()
	return had
}

// Image returns the held image.
func (u *Unit) Image() mo.Option[Image] {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.held
}

// Save writes the held image into dir and returns the file path.
func (u *Unit) Save(dir string) (string, error) {
	img, ok := u.Image().Get()
	if !ok {
		return "", ErrEmpty
	}

	name := fmt.Sprintf("frame-%s.%s", img.CapturedAt.UTC().Format("20060102T150405.000"), img.Format)
	path := filepath.Join(dir, name)
	if err := filesystem.WriteAtomic(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("save freeze frame: %w", err)
	}
	return path, nil
}
