package session

import (
	"testing"
	"time"

	"github.com/okian/petal/internal/domain/predict"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStore(t *testing.T) {
	Convey("Given a session store", t, func() {
		s := NewStore()

		Convey("Then defaults should apply", func() {
			So(s.TTL(), ShouldEqual, 30*time.Minute)
			So(s.Len(), ShouldEqual, 0)
		})

		Convey("When a new state is created", func() {
			st := s.New()

			Convey("Then it should have an id but not be stored yet", func() {
				So(st.ID, ShouldNotBeEmpty)
				So(st.Started, ShouldBeFalse)
				_, ok := s.Get(st.ID)
				So(ok, ShouldBeFalse)
			})

			Convey("And it is started and stored", func() {
				st.Started = true
				st.FileName = "flowers.csv"
				st.Predictions = &predict.Table{Classes: []string{"setosa"}}
				s.Put(st)

				Convey("Then it should come back unchanged", func() {
					got, ok := s.Get(st.ID)
					So(ok, ShouldBeTrue)
					So(got.Started, ShouldBeTrue)
					So(got.FileName, ShouldEqual, "flowers.csv")
					So(got.Predictions, ShouldEqual, st.Predictions)
					So(s.Len(), ShouldEqual, 1)
				})

				Convey("Then mutating the copy should not leak", func() {
					got, _ := s.Get(st.ID)
					got.Started = false
					again, _ := s.Get(st.ID)
					So(again.Started, ShouldBeTrue)
				})

				Convey("Then deleting should forget it", func() {
					s.Delete(st.ID)
					_, ok := s.Get(st.ID)
					So(ok, ShouldBeFalse)
				})
			})
		})

		Convey("Then malformed ids should be rejected", func() {
			_, ok := s.Get("not-a-uuid")
			So(ok, ShouldBeFalse)
			_, ok = s.Get("")
			So(ok, ShouldBeFalse)
		})

		Convey("Then a state without id should not be stored", func() {
			s.Put(State{Started: true})
			So(s.Len(), ShouldEqual, 0)
		})
	})

	Convey("Given a store with room for two sessions", t, func() {
		s := NewStore(WithMaxSessions(2))
		a, b, c := s.New(), s.New(), s.New()
		s.Put(a)
		s.Put(b)
		s.Put(c)

		Convey("Then the oldest session should be evicted", func() {
			So(s.Len(), ShouldEqual, 2)
			_, ok := s.Get(a.ID)
			So(ok, ShouldBeFalse)
			_, ok = s.Get(c.ID)
			So(ok, ShouldBeTrue)
		})
	})

	Convey("Given a store with a short TTL", t, func() {
		s := NewStore(WithTTL(20 * time.Millisecond))
		st := s.New()
		s.Put(st)

		Convey("Then the session should expire", func() {
			time.Sleep(60 * time.Millisecond)
			_, ok := s.Get(st.ID)
			So(ok, ShouldBeFalse)
		})
	})

	Convey("Given a store with one live session", t, func() {
		s := NewStore(WithMaxSessions(5), WithTTL(time.Minute))
		s.Put(s.New())

		Convey("Then its stats should report occupancy and limits", func() {
			stats := s.GetStats()
			So(stats["activeSessions"], ShouldEqual, 1)
			So(stats["maxSessions"], ShouldEqual, 5)
			So(stats["sessionTTLSeconds"], ShouldEqual, 60)
		})
	})
}
