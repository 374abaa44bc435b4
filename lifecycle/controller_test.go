package lifecycle

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/livewatch-cli/livewatch/metrics"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/player/playertest"
	"github.com/livewatch-cli/livewatch/quality"
	"github.com/livewatch-cli/livewatch/trigger"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/samber/lo"
	"github.com/samber/mo"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

var errBoom = errors.New("boom")

func testConfig() Config {
	return Config{
		RetryDelay:       10 * time.Millisecond,
		AttemptTimeout:   500 * time.Millisecond,
		MaxRetries:       2,
		TeardownDelay:    time.Millisecond,
		SnapshotFormat:   "jpeg",
		SnapshotQuality:  80,
		VolumeMultiplier: 1,
	}
}

// eventually polls cond until it holds or two seconds passed.
func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

type counters struct {
	play, stop, unavailable atomic.Int32

	mu        sync.Mutex
	errs      []error
	qualities []quality.Selection
}

func (n *counters) callbacks() Callbacks {
	return Callbacks{
		OnPlay:        func() { n.play.Add(1) },
		OnStop:        func() { n.stop.Add(1) },
		OnUnavailable: func() { n.unavailable.Add(1) },
		OnError: func(err error) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.errs = append(n.errs, err)
		},
		OnQuality: func(sel quality.Selection) {
			n.mu.Lock()
			defer n.mu.Unlock()
			n.qualities = append(n.qualities, sel)
		},
	}
}

func (n *counters) lastError() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.errs) == 0 {
		return nil
	}
	return n.errs[len(n.errs)-1]
}

func (n *counters) errorCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.errs)
}

func (n *counters) lastQuality() mo.Option[quality.Selection] {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.qualities) == 0 {
		return mo.None[quality.Selection]()
	}
	return mo.Some(n.qualities[len(n.qualities)-1])
}

func newController(f *playertest.Factory, store *trigger.Store, sources quality.Sources, sel quality.Selection, cb Callbacks) *Controller {
	c, err := New(Options{
		Surface:   player.Surface{ID: "test", Width: 640, Height: 360},
		Sources:   sources,
		Selection: sel,
		Triggers:  store,
		Factory:   f,
		Config:    testConfig(),
		Callbacks: cb,
	})
	So(err, ShouldBeNil)
	So(c.Init(context.Background()), ShouldBeNil)
	return c
}

func twoTiers() quality.Sources {
	return quality.NewSources(map[quality.Tier]string{0: "A", 1: "B"})
}

func threeTiers() quality.Sources {
	return quality.NewSources(map[quality.Tier]string{0: "A", 1: "B", 2: "C"})
}

func steady(c *Controller) func() bool {
	return func() bool { return c.Status().State == StateSteady }
}

func count(journal []string, entry string) int {
	n := 0
	for _, e := range journal {
		if e == entry {
			n++
		}
	}
	return n
}

func TestNew(t *testing.T) {
	Convey("New should require a factory and a trigger store", t, func() {
		_, err := New(Options{Triggers: trigger.NewStore(trigger.Snapshot{})})
		So(err, ShouldEqual, ErrNoFactory)

		_, err = New(Options{Factory: playertest.NewFactory()})
		So(err, ShouldEqual, ErrNoTriggers)
	})

	Convey("Operations before Init should fail", t, func() {
		c, err := New(Options{Factory: playertest.NewFactory(), Triggers: trigger.NewStore(trigger.Snapshot{Visible: true})})
		So(err, ShouldBeNil)
		So(c.RequestPlay(), ShouldEqual, ErrNotInitialized)
		So(c.SelectQuality(quality.Manual(0)), ShouldEqual, ErrNotInitialized)
		So(c.Close(), ShouldBeNil)
		So(c.Init(context.Background()), ShouldEqual, ErrClosed)
	})
}

func TestRetry(t *testing.T) {
	Convey("Given two tiers, manual high quality and a player failing twice", t, func() {
		f := playertest.Failing(2, errBoom)
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		retries := testutil.ToFloat64(metrics.RetriesTotal)
		So(c.RequestPlay(), ShouldBeNil)

		Convey("It should reach steady playback on the third attempt", func() {
			So(eventually(steady(c)), ShouldBeTrue)

			st := c.Status()
			So(st.RetryCount, ShouldEqual, 0)
			So(st.URL, ShouldEqual, "B")
			So(st.Unavailable, ShouldBeFalse)
			So(eventually(func() bool { return n.play.Load() == 1 }), ShouldBeTrue)
			So(testutil.ToFloat64(metrics.RetriesTotal)-retries, ShouldEqual, 2)

			journal := f.Journal()
			So(count(journal, "h0:load B"), ShouldEqual, 1)
			So(count(journal, "h1:load B"), ShouldEqual, 1)
			So(count(journal, "h2:load B"), ShouldEqual, 1)
			So(f.Created(), ShouldEqual, 3)
			So(f.MaxLive(), ShouldEqual, 1)
		})

		Convey("Every handle should start muted", func() {
			So(eventually(steady(c)), ShouldBeTrue)
			journal := f.Journal()
			for _, h := range []string{"h0", "h1", "h2"} {
				So(slices.Index(journal, h+":volume 0"), ShouldBeLessThan, slices.Index(journal, h+":load B"))
			}
		})

		Convey("A repeated play request while steady should do nothing", func() {
			So(eventually(steady(c)), ShouldBeTrue)
			So(c.RequestPlay(), ShouldBeNil)
			time.Sleep(30 * time.Millisecond)
			So(f.Created(), ShouldEqual, 3)
		})
	})

	Convey("Given a player that always fails", t, func() {
		f := &playertest.Factory{Script: func(i int) playertest.Behavior {
			if i < 3 {
				return playertest.Behavior{FailWith: errBoom}
			}
			return playertest.Behavior{}
		}}
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(0), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(func() bool { return c.Status().State == StateHalted }), ShouldBeTrue)

		Convey("It should halt after the last retry and report the error", func() {
			st := c.Status()
			So(st.Unavailable, ShouldBeTrue)
			So(st.RetryCount, ShouldEqual, 2)
			So(eventually(func() bool { return n.errorCount() == 1 }), ShouldBeTrue)
			So(n.unavailable.Load(), ShouldEqual, 1)
			So(errors.Is(n.lastError(), errBoom), ShouldBeTrue)
			So(n.play.Load(), ShouldEqual, 0)
		})

		Convey("It should make no further attempt on its own", func() {
			time.Sleep(50 * time.Millisecond)
			So(f.Created(), ShouldEqual, 3)
			So(c.Status().State, ShouldEqual, StateHalted)
		})

		Convey("A new session trigger should start over with a fresh retry count", func() {
			store.SetVisible(false)
			So(eventually(func() bool { return c.Status().State == StateIdle }), ShouldBeTrue)
			store.SetVisible(true)

			So(eventually(steady(c)), ShouldBeTrue)
			st := c.Status()
			So(st.RetryCount, ShouldEqual, 0)
			So(st.Unavailable, ShouldBeFalse)
			So(f.Created(), ShouldEqual, 4)
		})
	})

	Convey("Given an attempt that never renders", t, func() {
		f := &playertest.Factory{Script: func(i int) playertest.Behavior {
			if i == 0 {
				return playertest.Behavior{Silent: true}
			}
			return playertest.Behavior{}
		}}
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		c, err := New(Options{
			Sources:   twoTiers(),
			Selection: quality.Manual(0),
			Triggers:  store,
			Factory:   f,
			Config:    Config{RetryDelay: 20 * time.Millisecond, MaxRetries: 1},
		})
		So(err, ShouldBeNil)
		So(c.Init(context.Background()), ShouldBeNil)
		Reset(func() { _ = c.Close() })

		Convey("The timeout should default to the retry delay and be retried", func() {
			So(c.RequestPlay(), ShouldBeNil)
			So(eventually(steady(c)), ShouldBeTrue)
			So(f.Created(), ShouldEqual, 2)
			So(f.Handles()[0].Status(), ShouldEqual, player.StateDestroyed)
		})
	})
}

func TestRetryWait(t *testing.T) {
	Convey("Given a failed attempt waiting for its retry", t, func() {
		f := playertest.Failing(1, errBoom)
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		cfg := testConfig()
		cfg.RetryDelay = 150 * time.Millisecond
		c, err := New(Options{
			Sources:   twoTiers(),
			Selection: quality.Manual(1),
			Triggers:  store,
			Factory:   f,
			Config:    cfg,
			Callbacks: n.callbacks(),
		})
		So(err, ShouldBeNil)
		So(c.Init(context.Background()), ShouldBeNil)
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(func() bool { return c.Status().State == StateRetryWait }), ShouldBeTrue)
		So(c.Status().RetryCount, ShouldEqual, 1)
		So(f.Created(), ShouldEqual, 1)

		Convey("Losing visibility should release the failed player and skip the retry", func() {
			store.SetVisible(false)
			So(eventually(func() bool { return c.Status().State == StateIdle && f.Live() == 0 }), ShouldBeTrue)
			So(f.Handles()[0].Status(), ShouldEqual, player.StateDestroyed)

			time.Sleep(2 * cfg.RetryDelay)
			So(f.Created(), ShouldEqual, 1)
			So(c.Status().State, ShouldEqual, StateIdle)

			Convey("Regaining it should start a fresh session", func() {
				store.SetVisible(true)
				So(eventually(steady(c)), ShouldBeTrue)
				So(f.Created(), ShouldEqual, 2)
				So(c.Status().RetryCount, ShouldEqual, 0)
			})
		})

		Convey("Changing quality should start a new session right away", func() {
			So(c.SelectQuality(quality.Manual(0)), ShouldBeNil)
			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "A" }), ShouldBeTrue)

			st := c.Status()
			So(st.RetryCount, ShouldEqual, 0)
			So(st.Unavailable, ShouldBeFalse)
			So(f.Created(), ShouldEqual, 2)

			time.Sleep(2 * cfg.RetryDelay)
			So(f.Created(), ShouldEqual, 2)
		})

		Convey("RequestStop should cancel the retry and stay idle", func() {
			So(c.RequestStop(), ShouldBeNil)
			So(eventually(func() bool { return c.Status().State == StateIdle && f.Live() == 0 }), ShouldBeTrue)

			time.Sleep(2 * cfg.RetryDelay)
			So(f.Created(), ShouldEqual, 1)
			So(c.Status().State, ShouldEqual, StateIdle)
			So(n.play.Load(), ShouldEqual, 0)
		})
	})
}

func TestTriggers(t *testing.T) {
	Convey("Given a hidden surface", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{})
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(0), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)

		Convey("No attempt should start while hidden or while a network flag is set", func() {
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 0)

			store.SetMaintenance(true)
			store.SetVisible(true)
			So(c.RequestPlay(), ShouldBeNil)
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 0)
			So(c.Status().State, ShouldEqual, StateIdle)

			Convey("Clearing the flag should start playback", func() {
				store.SetMaintenance(false)
				So(eventually(steady(c)), ShouldBeTrue)
				So(f.Created(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given steady playback", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		var c *Controller
		var snapshotAtPlay atomic.Bool
		cb := n.callbacks()
		cb.OnPlay = func() {
			f.Note("on-play")
			snapshotAtPlay.Store(c.Status().HasSnapshot)
			n.play.Add(1)
		}
		c = newController(f, store, twoTiers(), quality.Manual(1), cb)
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(steady(c)), ShouldBeTrue)

		Convey("Losing visibility should freeze the frame and stop the player", func() {
			store.SetVisible(false)
			So(eventually(func() bool { return c.Status().State == StateIdle }), ShouldBeTrue)

			So(eventually(func() bool { return n.stop.Load() == 1 }), ShouldBeTrue)
			So(f.Live(), ShouldEqual, 0)
			So(c.Status().HasSnapshot, ShouldBeTrue)
			So(c.SnapshotImage().MustGet().Data, ShouldResemble, []byte("h0|jpeg|80"))

			journal := f.Journal()
			So(slices.Index(journal, "h0:snapshot"), ShouldBeLessThan, slices.Index(journal, "h0:stop"))
			So(slices.Index(journal, "h0:stop"), ShouldBeLessThan, slices.Index(journal, "h0:destroy"))

			Convey("Regaining it should play again and clear the frame after the first frame", func() {
				store.SetVisible(true)
				So(eventually(func() bool { return n.play.Load() == 2 }), ShouldBeTrue)

				journal := f.Journal()
				So(slices.Index(journal, "h1:first-frame"), ShouldBeLessThan, lo.LastIndexOf(journal, "on-play"))
				So(snapshotAtPlay.Load(), ShouldBeFalse)
				So(c.Status().HasSnapshot, ShouldBeFalse)
			})
		})

		Convey("A network flag should stop playback like hiding", func() {
			store.SetIdleTimeout(true)
			So(eventually(func() bool { return c.Status().State == StateIdle }), ShouldBeTrue)
			So(f.Live(), ShouldEqual, 0)

			store.SetIdleTimeout(false)
			So(eventually(steady(c)), ShouldBeTrue)
			So(f.Created(), ShouldEqual, 2)
		})

		Convey("RequestStop should freeze, stop and stay idle", func() {
			So(c.RequestStop(), ShouldBeNil)
			So(c.Status().State, ShouldEqual, StateIdle)
			So(c.Status().HasSnapshot, ShouldBeTrue)
			So(n.stop.Load(), ShouldEqual, 1)
			So(f.Live(), ShouldEqual, 0)

			store.SetVisible(false)
			store.SetVisible(true)
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)

			Convey("RequestPlay should resume", func() {
				So(c.RequestPlay(), ShouldBeNil)
				So(eventually(steady(c)), ShouldBeTrue)
				So(f.Created(), ShouldEqual, 2)
			})
		})

		Convey("A stopped event from the player should reload", func() {
			f.Last().Emit(player.Event{Kind: player.EventStopped})
			So(eventually(func() bool { return f.Created() == 2 }), ShouldBeTrue)
			So(eventually(steady(c)), ShouldBeTrue)
			So(c.Status().RetryCount, ShouldEqual, 0)
		})

		Convey("Events from a superseded handle should be ignored", func() {
			old := f.Last()
			So(c.SelectQuality(quality.Manual(0)), ShouldBeNil)
			So(eventually(func() bool { return f.Created() == 2 }), ShouldBeTrue)
			So(eventually(steady(c)), ShouldBeTrue)

			old.Emit(player.Event{Kind: player.EventEnded})
			old.Emit(player.Event{Kind: player.EventError, Err: errBoom})
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 2)
			So(old.Subscribers(), ShouldEqual, 0)
		})
	})

	Convey("Given visibility lost while the attempt is in flight", t, func() {
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		f := &playertest.Factory{Script: func(i int) playertest.Behavior {
			if i == 0 {
				return playertest.Behavior{
					FirstFrameDelay: 5 * time.Millisecond,
					OnPlay:          func(*playertest.Handle) { store.SetVisible(false) },
				}
			}
			return playertest.Behavior{}
		}}
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)

		Convey("The result should be discarded and the player stopped", func() {
			So(eventually(func() bool { return f.Live() == 0 && c.Status().State == StateIdle }), ShouldBeTrue)

			h := f.Handles()[0]
			So(eventually(func() bool { return n.stop.Load() == 1 }), ShouldBeTrue)
			So(n.play.Load(), ShouldEqual, 0)
			So(h.Subscribers(), ShouldEqual, 0)
			So(f.Journal(), ShouldContain, "h0:stop")
			So(f.Created(), ShouldEqual, 1)
		})
	})

	Convey("Given the source replaced while the attempt is in flight", t, func() {
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var c *Controller
		f := &playertest.Factory{Script: func(i int) playertest.Behavior {
			if i == 0 {
				return playertest.Behavior{
					FirstFrameDelay: 5 * time.Millisecond,
					OnPlay: func(*playertest.Handle) {
						_ = c.SetSources(quality.NewSources(map[quality.Tier]string{0: "A", 1: "X"}))
					},
				}
			}
			return playertest.Behavior{}
		}}
		var n counters
		c = newController(f, store, twoTiers(), quality.Manual(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)

		Convey("The controller should restart on the new URL", func() {
			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "X" }), ShouldBeTrue)
			So(f.Created(), ShouldEqual, 2)
			So(f.Handles()[1].URL(), ShouldEqual, "X")
			So(eventually(func() bool { return n.play.Load() == 1 }), ShouldBeTrue)
		})
	})
}

func TestQuality(t *testing.T) {
	Convey("Given automatic quality playing tier 1 of 3", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, threeTiers(), quality.Auto(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(steady(c)), ShouldBeTrue)

		h0 := f.Last()
		current, total := h0.QualityMode()
		So(current, ShouldEqual, 1)
		So(total, ShouldEqual, 3)

		Convey("A quality change targeting tier 2 should reload on tier 2", func() {
			h0.Emit(player.Event{Kind: player.EventQualityChange, Quality: player.QualityChange{
				Target:  mo.Some(2),
				Current: 1,
				Total:   3,
			}})

			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "C" }), ShouldBeTrue)
			st := c.Status()
			So(st.Selection, ShouldResemble, quality.Auto(2))
			So(st.RetryCount, ShouldEqual, 0)
			So(f.Created(), ShouldEqual, 2)
			So(eventually(func() bool { return n.lastQuality().IsPresent() }), ShouldBeTrue)
			So(n.lastQuality().MustGet(), ShouldResemble, quality.Auto(2))
		})

		Convey("A quality change without a target should do nothing", func() {
			h0.Emit(player.Event{Kind: player.EventQualityChange, Quality: player.QualityChange{
				Target:  mo.None[int](),
				Current: 1,
				Total:   3,
				Stutter: 12,
			}})
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)
			So(c.Status().Selection, ShouldResemble, quality.Auto(1))
		})

		Convey("Sources dropping the active tier should move to the highest remaining one and report it", func() {
			So(c.SetSources(quality.NewSources(map[quality.Tier]string{0: "A"})), ShouldBeNil)

			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "A" }), ShouldBeTrue)
			So(c.Status().Selection, ShouldResemble, quality.Auto(0))
			So(n.lastQuality().MustGet(), ShouldResemble, quality.Auto(0))
		})

		Convey("Switching to manual on the active tier should only reconfigure the player", func() {
			So(c.SelectQuality(quality.Manual(1)), ShouldBeNil)
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)
			So(c.Status().Selection, ShouldResemble, quality.Manual(1))
			So(count(f.Journal(), "h0:quality-mode 1/3"), ShouldEqual, 2)

			Convey("And quality feedback should then be ignored", func() {
				h0.Emit(player.Event{Kind: player.EventQualityChange, Quality: player.QualityChange{Target: mo.Some(0)}})
				time.Sleep(20 * time.Millisecond)
				So(f.Created(), ShouldEqual, 1)
			})
		})
	})

	Convey("Given manual quality playing tier 1", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(steady(c)), ShouldBeTrue)

		Convey("Reselecting tier 1 should not start an attempt", func() {
			So(c.SelectQuality(quality.Manual(1)), ShouldBeNil)
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)
			So(n.lastQuality().IsAbsent(), ShouldBeTrue)
		})

		Convey("Selecting tier 0 should tear down and reload", func() {
			So(c.SelectQuality(quality.Manual(0)), ShouldBeNil)
			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "A" }), ShouldBeTrue)

			journal := f.Journal()
			So(slices.Index(journal, "h0:destroy"), ShouldBeLessThan, slices.Index(journal, "h1:new"))
			So(f.MaxLive(), ShouldEqual, 1)
		})

		Convey("Selecting an unknown tier should fail", func() {
			err := c.SelectQuality(quality.Manual(7))
			So(errors.Is(err, quality.ErrUnknownTier), ShouldBeTrue)
			So(c.Status().Selection, ShouldResemble, quality.Manual(1))
		})

		Convey("Equal sources should be ignored", func() {
			So(c.SetSources(twoTiers()), ShouldBeNil)
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)
		})

		Convey("Changed sources should reload", func() {
			So(c.SetSources(quality.NewSources(map[quality.Tier]string{0: "A", 1: "B2"})), ShouldBeNil)
			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "B2" }), ShouldBeTrue)
		})
	})
}

func TestSurface(t *testing.T) {
	Convey("Given steady playback", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, twoTiers(), quality.Manual(1), n.callbacks())
		Reset(func() { _ = c.Close() })

		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(steady(c)), ShouldBeTrue)
		h0 := f.Last()

		Convey("The player should stay muted until audio is unlocked", func() {
			So(h0.Volume(), ShouldEqual, 0)

			So(c.ResumeWithVolume(0.5, 0.8), ShouldBeNil)
			So(h0.Volume(), ShouldAlmostEqual, 0.4)
			So(h0.Resumed(), ShouldEqual, 1)

			Convey("The next player should get the volume once it renders", func() {
				So(c.SelectQuality(quality.Manual(0)), ShouldBeNil)
				So(eventually(func() bool { return f.Created() == 2 && c.Status().State == StateSteady }), ShouldBeTrue)

				h1 := f.Last()
				So(eventually(func() bool { return h1.Volume() > 0.39 }), ShouldBeTrue)
				journal := f.Journal()
				So(slices.Index(journal, "h1:volume 0"), ShouldBeLessThan, slices.Index(journal, "h1:first-frame"))
				So(h1.Volume(), ShouldAlmostEqual, 0.4)
			})

			Convey("Mute should silence it again", func() {
				So(c.Mute(), ShouldBeNil)
				So(h0.Volume(), ShouldEqual, 0)
			})
		})

		Convey("Render mode and size should carry over to new players", func() {
			So(c.SetRenderMode(player.RenderCover), ShouldBeNil)
			So(c.Resize(800, 450), ShouldBeNil)
			So(h0.RenderMode(), ShouldEqual, player.RenderCover)

			So(c.SelectQuality(quality.Manual(0)), ShouldBeNil)
			So(eventually(func() bool { return f.Created() == 2 && c.Status().State == StateSteady }), ShouldBeTrue)

			w, h := f.Last().Size()
			So(w, ShouldEqual, 800)
			So(h, ShouldEqual, 450)
			So(f.Last().RenderMode(), ShouldEqual, player.RenderCover)
		})

		Convey("Resize should reject empty sizes", func() {
			So(c.Resize(0, 10), ShouldNotBeNil)
		})
	})
}

func TestStorm(t *testing.T) {
	Convey("Given a storm of triggers", t, func() {
		f := &playertest.Factory{Script: func(i int) playertest.Behavior {
			if i%3 == 1 {
				return playertest.Behavior{FailWith: errBoom}
			}
			return playertest.Behavior{FirstFrameDelay: time.Millisecond}
		}}
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		var n counters
		c := newController(f, store, threeTiers(), quality.Manual(0), n.callbacks())
		Reset(func() { _ = c.Close() })

		var wg sync.WaitGroup
		wg.Add(3)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				store.SetVisible(i%2 == 0)
				time.Sleep(time.Duration(i%3) * time.Millisecond)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = c.SelectQuality(quality.Manual(quality.Tier(i % 3)))
				_ = c.RequestPlay()
				time.Sleep(time.Duration(i%2) * time.Millisecond)
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				store.SetMultiSession(i%5 == 0)
				if i%7 == 0 {
					_ = c.RequestStop()
				}
				time.Sleep(time.Millisecond)
			}
		}()
		wg.Wait()

		store.Update(func(s *trigger.Snapshot) {
			s.Visible = true
			s.MultiSession = false
		})
		So(c.SelectQuality(quality.Manual(2)), ShouldBeNil)
		So(c.RequestPlay(), ShouldBeNil)

		Convey("At most one player should ever be live", func() {
			So(eventually(func() bool { st := c.Status(); return st.State == StateSteady && st.URL == "C" }), ShouldBeTrue)
			So(f.MaxLive(), ShouldBeLessThanOrEqualTo, 1)
			So(f.Live(), ShouldEqual, 1)
		})
	})
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	Convey("Given an attempt that never settles", t, func() {
		f := &playertest.Factory{Script: func(int) playertest.Behavior {
			return playertest.Behavior{Silent: true}
		}}
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		c, err := New(Options{
			Sources:   twoTiers(),
			Selection: quality.Manual(0),
			Triggers:  store,
			Factory:   f,
			Config:    Config{RetryDelay: time.Minute, MaxRetries: -1},
		})
		So(err, ShouldBeNil)
		So(c.Init(context.Background()), ShouldBeNil)
		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(func() bool { return c.Status().State == StateAttempting }), ShouldBeTrue)

		Convey("Close should cancel it and release the player", func() {
			So(c.Close(), ShouldBeNil)
			So(f.Live(), ShouldEqual, 0)
			So(c.Status().State, ShouldEqual, StateIdle)
			So(c.Status().HasPlayer, ShouldBeFalse)
			So(f.Journal(), ShouldNotContain, "h0:snapshot")

			So(c.RequestPlay(), ShouldEqual, ErrClosed)
			So(c.Close(), ShouldBeNil)

			store.SetVisible(false)
			store.SetVisible(true)
			So(f.Created(), ShouldEqual, 1)
		})
	})

	Convey("Given a cancelled parent context", t, func() {
		f := playertest.NewFactory()
		store := trigger.NewStore(trigger.Snapshot{Visible: true})
		ctx, cancel := context.WithCancel(context.Background())
		c, err := New(Options{Sources: twoTiers(), Triggers: store, Factory: f, Config: testConfig()})
		So(err, ShouldBeNil)
		So(c.Init(ctx), ShouldBeNil)
		So(c.RequestPlay(), ShouldBeNil)
		So(eventually(steady(c)), ShouldBeTrue)
		cancel()

		Convey("No further attempt should start", func() {
			f.Last().Emit(player.Event{Kind: player.EventEnded})
			time.Sleep(20 * time.Millisecond)
			So(f.Created(), ShouldEqual, 1)
			So(c.Close(), ShouldBeNil)
			So(f.Live(), ShouldEqual, 0)
		})
	})
}
