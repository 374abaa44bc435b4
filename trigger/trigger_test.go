package trigger

import (
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSnapshot(t *testing.T) {
	Convey("Snapshot eligibility", t, func() {
		So(Snapshot{Visible: true}.Eligible(), ShouldBeTrue)
		So(Snapshot{}.Eligible(), ShouldBeFalse)
		So(Snapshot{Visible: true, Maintenance: true}.Eligible(), ShouldBeFalse)
		So(Snapshot{Visible: true, Expired: true}.NetworkBlocked(), ShouldBeTrue)
		So(Snapshot{IdleTimeout: true}.Reason(), ShouldEqual, "hidden,idle-timeout")
		So(Snapshot{Visible: true}.Reason(), ShouldBeEmpty)
	})
}

func TestStore(t *testing.T) {
	Convey("Given a store with a listener", t, func() {
		store := NewStore(Snapshot{Visible: true})

		var calls []Snapshot
		unsubscribe := store.Subscribe(func(prev, next Snapshot) {
			calls = append(calls, next)
		})

		Convey("Changing a flag should notify the listener once", func() {
			store.SetIdleTimeout(true)
			So(len(calls), ShouldEqual, 1)
			So(calls[0].IdleTimeout, ShouldBeTrue)
			So(store.Load().Eligible(), ShouldBeFalse)
		})

		Convey("Setting the same value should not notify", func() {
			store.SetVisible(true)
			So(calls, ShouldBeEmpty)
		})

		Convey("Update should return the previous and next snapshot", func() {
			prev, next := store.Update(func(s *Snapshot) {
				s.Visible = false
				s.Expired = true
			})
			So(prev.Visible, ShouldBeTrue)
			So(next.Visible, ShouldBeFalse)
			So(next.Expired, ShouldBeTrue)
		})

		Convey("Unsubscribed listeners should not be notified", func() {
			unsubscribe()
			store.SetMaintenance(true)
			So(calls, ShouldBeEmpty)
		})

		Convey("Concurrent readers should never observe a torn snapshot", func() {
			var wg sync.WaitGroup
			torn := false
			var mu sync.Mutex

			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					v := i%2 == 0
					store.Update(func(s *Snapshot) {
						s.IdleTimeout = v
						s.MultiSession = v
					})
				}
			}()
			go func() {
				defer wg.Done()
				for i := 0; i < 1000; i++ {
					s := store.Load()
					if s.IdleTimeout != s.MultiSession {
						mu.Lock()
						torn = true
						mu.Unlock()
					}
				}
			}()
			wg.Wait()
			So(torn, ShouldBeFalse)
		})
	})
}
