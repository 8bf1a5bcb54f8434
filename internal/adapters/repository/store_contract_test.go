package repository_test

import (
	"context"
	"errors"
	"testing"

	"github.com/okian/adroute/internal/adapters/repository"
	"github.com/okian/adroute/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

// storeContract exercises the behaviour every Store implementation must share.
func storeContract(t *testing.T, name string, newStore func() repository.Store) {
	Convey("Given a "+name+" store", t, func() {
		ctx := context.Background()
		s := newStore()
		defer func() { _ = s.Close() }()

		Convey("When reading a missing key", func() {
			_, err := s.Get(ctx, "buyer:none")

			Convey("Then it should report absence, not a fault", func() {
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
				So(errors.Is(err, model.ErrStore), ShouldBeFalse)
			})
		})

		Convey("When putting and getting a blob", func() {
			So(s.Put(ctx, "buyer:b1", []byte(`{"id":"b1"}`)), ShouldBeNil)
			So(s.Put(ctx, "buyer:b1", []byte(`{"id":"b1","v":2}`)), ShouldBeNil)
			blob, err := s.Get(ctx, "buyer:b1")

			Convey("Then the last write should win", func() {
				So(err, ShouldBeNil)
				So(string(blob), ShouldEqual, `{"id":"b1","v":2}`)
			})
		})

		Convey("When bulk reading present and absent keys", func() {
			So(s.Put(ctx, "a", []byte("1")), ShouldBeNil)
			So(s.Put(ctx, "c", []byte("3")), ShouldBeNil)
			blobs, err := s.BulkGet(ctx, "a", "b", "c")

			Convey("Then entries should keep key order with explicit absences", func() {
				So(err, ShouldBeNil)
				So(len(blobs), ShouldEqual, 3)
				So(string(blobs[0]), ShouldEqual, "1")
				So(blobs[1], ShouldBeNil)
				So(string(blobs[2]), ShouldEqual, "3")
			})
		})

		Convey("When intersecting sets", func() {
			So(s.AddToSet(ctx, "device:ios", "b1-b1:0"), ShouldBeNil)
			So(s.AddToSet(ctx, "device:ios", "b2-b2:0"), ShouldBeNil)
			So(s.AddToSet(ctx, "state:CA", "b1-b1:0"), ShouldBeNil)
			So(s.AddToSet(ctx, "state:CA", "b3-b3:0"), ShouldBeNil)

			Convey("Then only common members should remain", func() {
				got, err := s.IntersectSets(ctx, "device:ios", "state:CA")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []string{"b1-b1:0"})
			})

			Convey("And operand order should not matter", func() {
				got, err := s.IntersectSets(ctx, "state:CA", "device:ios")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []string{"b1-b1:0"})
			})

			Convey("And a missing set should empty the result", func() {
				got, err := s.IntersectSets(ctx, "device:ios", "state:NY")
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})

			Convey("And removed members should disappear", func() {
				So(s.RemoveFromSet(ctx, "state:CA", "b1-b1:0", "unknown"), ShouldBeNil)
				got, err := s.IntersectSets(ctx, "device:ios", "state:CA")
				So(err, ShouldBeNil)
				So(got, ShouldBeEmpty)
			})
		})

		Convey("When committing a batch", func() {
			So(s.AddToSet(ctx, "hour:14", "old-old:0"), ShouldBeNil)
			b := repository.NewBatch().
				Expect("buyer:b9", nil).
				Put("buyer:b9", []byte("v1")).
				RemoveFromSet("hour:14", "old-old:0").
				AddToSet("hour:14", "b9-b9:0").
				AddToSet("day:2", "b9-b9:0")
			err := s.Commit(ctx, b)

			Convey("Then every write should be visible", func() {
				So(err, ShouldBeNil)
				blob, err := s.Get(ctx, "buyer:b9")
				So(err, ShouldBeNil)
				So(string(blob), ShouldEqual, "v1")
				got, err := s.IntersectSets(ctx, "hour:14", "day:2")
				So(err, ShouldBeNil)
				So(got, ShouldResemble, []string{"b9-b9:0"})
			})

			Convey("And a stale guard should apply nothing", func() {
				stale := repository.NewBatch().
					Expect("buyer:b9", nil).
					Put("buyer:b9", []byte("v2")).
					AddToSet("hour:15", "b9-b9:0")
				err := s.Commit(ctx, stale)
				So(errors.Is(err, repository.ErrConflict), ShouldBeTrue)
				So(errors.Is(err, model.ErrConflict), ShouldBeTrue)

				blob, _ := s.Get(ctx, "buyer:b9")
				So(string(blob), ShouldEqual, "v1")
				got, _ := s.IntersectSets(ctx, "hour:15")
				So(got, ShouldBeEmpty)
			})

			Convey("And a matching value guard should pass", func() {
				next := repository.NewBatch().
					Expect("buyer:b9", []byte("v1")).
					Put("buyer:b9", []byte("v2"))
				So(s.Commit(ctx, next), ShouldBeNil)
				blob, _ := s.Get(ctx, "buyer:b9")
				So(string(blob), ShouldEqual, "v2")
			})
		})

		Convey("When the store is pinged", func() {
			So(s.Ping(ctx), ShouldBeNil)
			So(s.Kind(), ShouldNotBeBlank)
		})
	})
}
