// Package quality models stream quality tiers, the user's selection among them and
// the reaction to quality feedback emitted by the player.
package quality

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/livewatch-cli/livewatch/player"
	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// ErrUnknownTier is returned when a tier has no stream URL.
var ErrUnknownTier = errors.New("unknown quality tier")

// Tier is a discrete quality level. Higher is better.
type Tier int

// Mode tells whether the user pinned a tier or lets the player pick.
type Mode int

const (
	ModeAuto Mode = iota
	ModeManual
)

func (m Mode) String() string {
	if m == ModeManual {
		return "manual"
	}
	return "auto"
}

// Selection is the quality the user asked for. Tier is the pinned tier in manual mode
// and the currently active tier in automatic mode.
type Selection struct {
	Mode Mode
	Tier Tier
}

// Auto returns an automatic selection currently on tier.
func Auto(active Tier) Selection {
	return Selection{Mode: ModeAuto, Tier: active}
}

// Manual returns a selection pinned to tier.
func Manual(tier Tier) Selection {
	return Selection{Mode: ModeManual, Tier: tier}
}

func (s Selection) IsAuto() bool {
	return s.Mode == ModeAuto
}

func (s Selection) String() string {
	if s.IsAuto() {
		return fmt.Sprintf("auto(%d)", s.Tier)
	}
	return strconv.Itoa(int(s.Tier))
}

// ParseSelection reads "auto", "auto(N)" or a tier index. Bare "auto" starts on fallback.
func ParseSelection(s string, fallback Tier) (Selection, error) {
	s = strings.TrimSpace(strings.ToLower(s))

	switch {
	case s == "auto":
		return Auto(fallback), nil
	case strings.HasPrefix(s, "auto(") && strings.HasSuffix(s, ")"):
		n, err := strconv.Atoi(s[len("auto(") : len(s)-1])
		if err != nil {
			return Selection{}, fmt.Errorf("invalid quality %q: %w", s, err)
		}
		return Auto(Tier(n)), nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil {
			return Selection{}, fmt.Errorf("invalid quality %q: expected \"auto\" or a tier index", s)
		}
		return Manual(Tier(n)), nil
	}
}

// Feedback applies a player quality-change event to an automatic selection.
// It returns the updated selection and whether the active tier changed.
// Manual selections and events without a target are left untouched.
func Feedback(sel Selection, ev player.QualityChange) (Selection, bool) {
	if !sel.IsAuto() {
		return sel, false
	}

	target, ok := ev.Target.Get()
	if !ok || Tier(target) == sel.Tier {
		return sel, false
	}

	return Auto(Tier(target)), true
}

// Sources maps tiers to stream URLs. The zero value has no tiers.
type Sources struct {
	urls map[Tier]string
}

// NewSources copies urls, dropping empty entries.
func NewSources(urls map[Tier]string) Sources {
	return Sources{urls: lo.PickBy(urls, func(_ Tier, u string) bool {
		return strings.TrimSpace(u) != ""
	})}
}

// ParseSources reads "tier=url" pairs.
func ParseSources(pairs []string) (Sources, error) {
	urls := make(map[Tier]string, len(pairs))

	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return Sources{}, fmt.Errorf("invalid source %q: expected tier=url", pair)
		}

		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return Sources{}, fmt.Errorf("invalid tier in %q: %w", pair, err)
		}

		if _, dup := urls[Tier(n)]; dup {
			return Sources{}, fmt.Errorf("tier %d given twice", n)
		}
		urls[Tier(n)] = strings.TrimSpace(v)
	}

	return NewSources(urls), nil
}

// Resolve returns the URL of tier.
func (s Sources) Resolve(tier Tier) (string, bool) {
	u, ok := s.urls[tier]
	return u, ok
}

// Tiers returns the known tiers in ascending order.
func (s Sources) Tiers() []Tier {
	tiers := lo.Keys(s.urls)
	slices.Sort(tiers)
	return tiers
}

// Len returns the number of tiers.
func (s Sources) Len() int {
	return len(s.urls)
}

// Highest returns the best tier, if any.
func (s Sources) Highest() (Tier, bool) {
	tiers := s.Tiers()
	if len(tiers) == 0 {
		return 0, false
	}
	return tiers[len(tiers)-1], true
}

// Equal reports whether both hold the same tiers and URLs.
func (s Sources) Equal(o Sources) bool {
	if len(s.urls) != len(o.urls) {
		return false
	}
	for t, u := range s.urls {
		if ou, ok := o.urls[t]; !ok || ou != u {
			return false
		}
	}
	return true
}

// Key returns a stable identifier for the set of URLs, used to remember preferences per stream.
func (s Sources) Key() string {
	return strings.Join(lo.Map(s.Tiers(), func(t Tier, _ int) string {
		return fmt.Sprintf("%d=%s", t, s.urls[t])
	}), ";")
}
