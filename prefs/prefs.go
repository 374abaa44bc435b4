// Package prefs persists per-stream viewer preferences: the last quality selection and volume levels.
package prefs

import (
	"sync"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/key"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/where"
	"github.com/metafates/gache"
	"github.com/spf13/viper"
)

// Preference is what is remembered for one stream.
type Preference struct {
	Quality      string  `json:"quality,omitempty"`
	UserVolume   float64 `json:"user_volume"`
	MasterVolume float64 `json:"master_volume"`
}

// Defaults is returned for streams without saved preferences. Volumes come from the configuration.
func Defaults() Preference {
	return Preference{
		UserVolume:   viper.GetFloat64(key.VolumeUser),
		MasterVolume: viper.GetFloat64(key.VolumeMaster),
	}
}

// the cache is built on first use so the path is resolved against the active filesystem backend
var cacher = sync.OnceValue(func() *gache.Cache[map[string]Preference] {
	return gache.New[map[string]Preference](
		&gache.Options{
			Path:       where.Preferences(),
			FileSystem: &filesystem.GacheFs{},
		},
	)
})

var mu sync.Mutex

func load() (map[string]Preference, error) {
	cached, expired, err := cacher().Get()
	if err != nil {
		return nil, err
	}
	if expired || cached == nil {
		return make(map[string]Preference), nil
	}
	return cached, nil
}

// Get returns the preference saved for stream, or Defaults.
func Get(stream string) (Preference, error) {
	mu.Lock()
	defer mu.Unlock()

	saved, err := load()
	if err != nil {
		return Defaults(), err
	}

	p, ok := saved[stream]
	if !ok {
		return Defaults(), nil
	}
	return p, nil
}

func update(stream string, fn func(*Preference)) error {
	mu.Lock()
	defer mu.Unlock()

	saved, err := load()
	if err != nil {
		return err
	}

	p, ok := saved[stream]
	if !ok {
		p = Defaults()
	}
	fn(&p)
	saved[stream] = p

	return cacher().Set(saved)
}

// SaveQuality remembers sel for stream. Automatic selections are stored as "auto"
// so the next session starts adaptive again instead of on the last active tier.
func SaveQuality(stream string, sel quality.Selection) error {
	value := "auto"
	if !sel.IsAuto() {
		value = sel.String()
	}
	return update(stream, func(p *Preference) { p.Quality = value })
}

// SaveVolume remembers the user and master volume for stream.
func SaveVolume(stream string, user, master float64) error {
	return update(stream, func(p *Preference) {
		p.UserVolume = user
		p.MasterVolume = master
	})
}

// Remove forgets everything saved for stream.
func Remove(stream string) error {
	mu.Lock()
	defer mu.Unlock()

	saved, err := load()
	if err != nil {
		return err
	}

	delete(saved, stream)
	return cacher().Set(saved)
}
