package freeze

import (
	"errors"
	"testing"
	"time"

	"github.com/livewatch-cli/livewatch/filesystem"
	"github.com/livewatch-cli/livewatch/player"
	"github.com/livewatch-cli/livewatch/player/playertest"
	"github.com/samber/lo"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	filesystem.SetMemMapFs()
}

// rendering returns a handle that has shown its first frame.
func rendering(f *playertest.Factory) *playertest.Handle {
	h := lo.Must(f.New(player.Surface{})).(*playertest.Handle)
	lo.Must0(h.Load("https://cdn/live.m3u8"))
	lo.Must0(h.Play())
	h.FirstFrame()
	return h
}

func TestCaptureIfAbsent(t *testing.T) {
	Convey("Given a freeze unit and a rendering player", t, func() {
		factory := playertest.NewFactory()
		factory.Script = func(int) playertest.Behavior { return playertest.Behavior{Silent: true} }
		unit := New("jpeg", 70)
		first := rendering(factory)

		Convey("When capturing", func() {
			So(unit.CaptureIfAbsent(first), ShouldBeTrue)

			Convey("Then the image should carry the configured encoding", func() {
				img, ok := unit.Image().Get()
				So(ok, ShouldBeTrue)
				So(img.Format, ShouldEqual, "jpeg")
				So(img.Quality, ShouldEqual, 70)
				So(string(img.Data), ShouldEqual, "h0|jpeg|70")
			})

			Convey("Then capturing again should keep the first image", func() {
				second := rendering(factory)
				So(unit.CaptureIfAbsent(second), ShouldBeTrue)
				So(string(unit.Image().MustGet().Data), ShouldEqual, "h0|jpeg|70")
				So(second.Snapshots(), ShouldEqual, 0)
			})

			Convey("Then Clear should drop it exactly once", func() {
				So(unit.Clear(), ShouldBeTrue)
				So(unit.Clear(), ShouldBeFalse)
				So(unit.Image().IsPresent(), ShouldBeFalse)
			})
		})

		Convey("When the player cannot produce a frame", func() {
			h := lo.Must(factory.New(player.Surface{})).(*playertest.Handle)

			Convey("Then nothing should be held", func() {
				So(unit.CaptureIfAbsent(h), ShouldBeFalse)
				So(unit.Image().IsPresent(), ShouldBeFalse)
			})
		})

		Convey("When the snapshot call fails", func() {
			factory.Script = func(int) playertest.Behavior {
				return playertest.Behavior{Silent: true, SnapshotErr: errors.New("gpu lost")}
			}
			h := rendering(factory)

			Convey("Then nothing should be held", func() {
				So(unit.CaptureIfAbsent(h), ShouldBeFalse)
			})
		})

		Convey("When there is no handle", func() {
			So(unit.CaptureIfAbsent(nil), ShouldBeFalse)
		})
	})
}

func TestSave(t *testing.T) {
	Convey("Given a unit holding an image", t, func() {
		factory := playertest.NewFactory()
		factory.Script = func(int) playertest.Behavior { return playertest.Behavior{Silent: true} }
		unit := New("png", 0)
		unit.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
		unit.CaptureIfAbsent(rendering(factory))

		Convey("Save should write it into the directory", func() {
			path, err := unit.Save("/frames")
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/frames/frame-20260102T030405.000.png")
			So(string(lo.Must(filesystem.API().ReadFile(path))), ShouldEqual, "h0|png|0")
		})

		Convey("Save should fail once cleared", func() {
			unit.Clear()
			_, err := unit.Save("/frames")
			So(err, ShouldEqual, ErrEmpty)
		})
	})
}
