package player

import (
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMPV(t *testing.T) {
	Convey("Given an mpv handle that was never loaded", t, func() {
		mpv := NewMPV("", Surface{ID: "0x2a", Width: 1280, Height: 720}, Options{
			LowLatency:   true,
			MaxLatency:   1500 * time.Millisecond,
			LogVerbosity: "error",
		})
		mpv.socketPath = "/tmp/livewatch-test.sock"

		Convey("It should report the stopped state", func() {
			So(mpv.Status(), ShouldEqual, StateStopped)
		})

		Convey("The command line should carry the surface and latency settings", func() {
			args := mpv.args()
			So(args, ShouldContain, "--input-ipc-server=/tmp/livewatch-test.sock")
			So(args, ShouldContain, "--msg-level=all=error")
			So(args, ShouldContain, "--profile=low-latency")
			So(args, ShouldContain, "--cache-secs=1.5")
			So(args, ShouldContain, "--wid=0x2a")
			So(args, ShouldContain, "--geometry=1280x720")
			So(args, ShouldContain, "--pause=yes")
		})

		Convey("Commands should fail with ErrNotStarted", func() {
			So(errors.Is(mpv.Play(), ErrNotStarted), ShouldBeTrue)
			So(errors.Is(mpv.Resume(), ErrNotStarted), ShouldBeTrue)
		})

		Convey("Settings made before Load should land on the command line", func() {
			So(mpv.SetVolume(0.25), ShouldBeNil)
			So(mpv.SetRenderMode(RenderFill), ShouldBeNil)
			So(mpv.Resize(640, 360), ShouldBeNil)

			args := mpv.args()
			So(args, ShouldContain, "--volume=25")
			So(args, ShouldContain, "--keepaspect=no")
			So(args, ShouldContain, "--geometry=640x360")
			So(args, ShouldNotContain, "--geometry=1280x720")
		})

		Convey("The default command line should be muted", func() {
			So(mpv.args(), ShouldContain, "--volume=0")
		})

		Convey("Snapshot should refuse without a rendered frame", func() {
			_, err := mpv.Snapshot("jpeg", 80)
			So(err, ShouldEqual, ErrNoFrame)
		})

		Convey("Destroy should succeed and mark the handle destroyed", func() {
			So(mpv.Destroy(), ShouldBeNil)
			So(mpv.Status(), ShouldEqual, StateDestroyed)
		})

		Convey("Load should reject flag-like targets", func() {
			So(mpv.Load("--script=evil.lua"), ShouldNotBeNil)
		})
	})
}

func TestHandleMessage(t *testing.T) {
	Convey("Given an mpv handle receiving IPC events", t, func() {
		mpv := NewMPV("mpv", Surface{}, Options{})
		var got []Event
		for _, kind := range []EventKind{EventFirstFrame, EventStopped, EventEnded, EventError, EventQualityChange} {
			mpv.Subscribe(kind, func(ev Event) { got = append(got, ev) })
		}

		Convey("The first playback-restart should be the first frame", func() {
			mpv.handleMessage(ipcMessage{Event: "file-loaded"})
			So(mpv.Status(), ShouldEqual, StateLoaded)

			mpv.handleMessage(ipcMessage{Event: "playback-restart"})
			mpv.handleMessage(ipcMessage{Event: "seek"})
			mpv.handleMessage(ipcMessage{Event: "playback-restart"})

			So(len(got), ShouldEqual, 1)
			So(got[0].Kind, ShouldEqual, EventFirstFrame)
			So(mpv.Status(), ShouldEqual, StatePlaying)
		})

		Convey("end-file with an error reason should emit an error", func() {
			mpv.handleMessage(ipcMessage{Event: "end-file", Reason: "error", FileError: "loading failed"})
			So(len(got), ShouldEqual, 1)
			So(got[0].Kind, ShouldEqual, EventError)
			So(got[0].Err.Error(), ShouldContainSubstring, "loading failed")
		})

		Convey("end-file at eof should emit ended", func() {
			mpv.handleMessage(ipcMessage{Event: "end-file", Reason: "eof"})
			So(len(got), ShouldEqual, 1)
			So(got[0].Kind, ShouldEqual, EventEnded)
		})

		Convey("end-file caused by our own stop should be silent", func() {
			mpv.handleMessage(ipcMessage{Event: "end-file", Reason: "stop"})
			So(got, ShouldBeEmpty)
		})

		Convey("Going idle after rendering should emit stopped", func() {
			mpv.handleMessage(ipcMessage{Event: "playback-restart"})
			mpv.handleMessage(ipcMessage{Event: "property-change", Name: "idle-active", Data: true})
			So(len(got), ShouldEqual, 2)
			So(got[1].Kind, ShouldEqual, EventStopped)
		})

		Convey("An unpaused file that never rendered should yield no snapshot", func() {
			mpv.handleMessage(ipcMessage{Event: "file-loaded"})
			mpv.setStatus(StatePlaying)
			mpv.handleMessage(ipcMessage{Event: "property-change", Name: "pause", Data: false})

			So(mpv.Status().Renders(), ShouldBeTrue)
			_, err := mpv.Snapshot("jpeg", 80)
			So(err, ShouldEqual, ErrNoFrame)
		})

		Convey("Going idle should drop the frame again", func() {
			mpv.handleMessage(ipcMessage{Event: "playback-restart"})
			So(mpv.hasFrame(), ShouldBeTrue)

			mpv.handleMessage(ipcMessage{Event: "property-change", Name: "idle-active", Data: true})
			_, err := mpv.Snapshot("png", 0)
			So(err, ShouldEqual, ErrNoFrame)
		})

		Convey("Frame drops should be reported only once the quality mode is configured", func() {
			mpv.handleMessage(ipcMessage{Event: "property-change", Name: "frame-drop-count", Data: 3.0})
			So(got, ShouldBeEmpty)

			So(mpv.ConfigQualityMode(1, 3), ShouldBeNil)
			mpv.handleMessage(ipcMessage{Event: "property-change", Name: "frame-drop-count", Data: 4.0})
			So(len(got), ShouldEqual, 1)
			So(got[0].Quality.Stutter, ShouldEqual, 4)
			So(got[0].Quality.Current, ShouldEqual, 1)
			So(got[0].Quality.Total, ShouldEqual, 3)
			So(got[0].Quality.Target.IsPresent(), ShouldBeFalse)
		})
	})
}

func TestSanitizeMediaTarget(t *testing.T) {
	Convey("sanitizeMediaTarget", t, func() {
		Convey("Should accept live stream schemes", func() {
			for _, u := range []string{"https://cdn.example.com/live.m3u8", "rtmp://example.com/app/key", "srt://10.0.0.2:9000"} {
				got, err := sanitizeMediaTarget(u)
				So(err, ShouldBeNil)
				So(got, ShouldEqual, u)
			}
		})

		Convey("Should reject unknown schemes", func() {
			_, err := sanitizeMediaTarget("javascript://alert")
			So(err, ShouldNotBeNil)
		})

		Convey("Should reject control characters and empty input", func() {
			_, err := sanitizeMediaTarget("http://a\nb")
			So(err, ShouldNotBeNil)
			_, err = sanitizeMediaTarget("   ")
			So(err, ShouldNotBeNil)
		})

		Convey("Should clean local paths", func() {
			got, err := sanitizeMediaTarget("./streams/../streams/a.ts")
			So(err, ShouldBeNil)
			So(got, ShouldEqual, "streams/a.ts")
		})
	})
}

func TestEmitter(t *testing.T) {
	Convey("Given an emitter with two subscriptions", t, func() {
		var e Emitter
		var first, second int
		id := e.Subscribe(EventStopped, func(Event) { first++ })
		e.Subscribe(EventStopped, func(Event) { second++ })
		e.Subscribe(EventEnded, func(Event) { second += 10 })

		Convey("Emit should only reach handlers of the same kind", func() {
			e.Emit(Event{Kind: EventStopped})
			So(first, ShouldEqual, 1)
			So(second, ShouldEqual, 1)
		})

		Convey("An unsubscribed handler should not be called", func() {
			e.Unsubscribe(id)
			e.Emit(Event{Kind: EventStopped})
			So(first, ShouldEqual, 0)
			So(e.Len(), ShouldEqual, 2)
		})

		Convey("A handler may unsubscribe itself while being called", func() {
			var self SubscriptionID
			self = e.Subscribe(EventError, func(Event) { e.Unsubscribe(self) })
			e.Emit(Event{Kind: EventError})
			So(e.Len(), ShouldEqual, 3)
		})
	})
}

func TestStateRenders(t *testing.T) {
	Convey("Only rendering states can be captured", t, func() {
		So(StatePlayed.Renders(), ShouldBeTrue)
		So(StatePaused.Renders(), ShouldBeTrue)
		So(StateLoading.Renders(), ShouldBeFalse)
		So(StateDestroyed.Renders(), ShouldBeFalse)
	})
}
