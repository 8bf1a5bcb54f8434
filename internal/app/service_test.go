package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/adroute/internal/adapters/repository"
	service "github.com/okian/adroute/internal/app"
	"github.com/okian/adroute/internal/domain/model"
	"github.com/okian/adroute/internal/domain/registry"
	"github.com/okian/adroute/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

// tuesday14 is a Tuesday (day 2) at 14:xx UTC.
const tuesday14 = "2024-01-02T14:30:00Z"

func criteria(device string, hour, day int, state string) *model.Criteria {
	return &model.Criteria{Device: []string{device}, Hour: []int{hour}, Day: []int{day}, State: []string{state}}
}

func buyer(id string, offers ...model.Offer) *model.Buyer {
	return &model.Buyer{ID: id, Offers: offers}
}

func offer(value float64, location string, c *model.Criteria) model.Offer {
	return model.Offer{Value: value, Location: location, Criteria: c}
}

func startService(store repository.Store, opts ...service.Option) *service.Service {
	svc := service.New(append([]service.Option{service.WithStore(store)}, opts...)...)
	So(svc.Start(context.Background()), ShouldBeNil)
	return svc
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		ctx := context.Background()

		Convey("Operations before Start report an unavailable store", func() {
			err := svc.RegisterBuyer(ctx, buyer("b1", offer(1, "http://x", criteria("ios", 14, 2, "CA"))))
			So(errors.Is(err, model.ErrStore), ShouldBeTrue)
			_, err = svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(errors.Is(err, model.ErrStore), ShouldBeTrue)
			So(errors.Is(svc.Ping(ctx), model.ErrStore), ShouldBeTrue)
		})

		Convey("When started without a store it uses memory", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			defer svc.Stop()

			So(svc.StoreKind(), ShouldEqual, "memory")
			So(svc.Ping(ctx), ShouldBeNil)

			stats := svc.GetStats(ctx)
			So(stats.Store, ShouldEqual, "memory")
			So(stats.TimeZone, ShouldEqual, "UTC")
			So(stats.RecordCodec, ShouldEqual, "json")
			So(stats.RepairWorkers, ShouldEqual, 2)
		})

		Convey("When stopped it closes the store", func() {
			store := repository.NewMemoryStore()
			svc := startService(store)
			svc.Stop()
			svc.Stop()
			So(errors.Is(store.Ping(ctx), model.ErrStore), ShouldBeTrue)
		})
	})
}

func TestService_RegisterAndGet(t *testing.T) {
	Convey("Given a started service", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := startService(store)
		defer svc.Stop()

		Convey("When a valid buyer is registered", func() {
			b := buyer("b1",
				offer(10, "http://x", criteria("ios", 14, 2, "CA")),
				offer(3, "http://y", &model.Criteria{Device: []string{}, Hour: []int{}, Day: []int{}, State: []string{}}),
			)
			So(svc.RegisterBuyer(ctx, b), ShouldBeNil)

			Convey("Then GetBuyer returns the offers unchanged without ids", func() {
				view, err := svc.GetBuyer(ctx, "b1")
				So(err, ShouldBeNil)
				So(view.ID, ShouldEqual, "b1")
				So(view.Offers, ShouldHaveLength, 2)
				So(view.Offers[0].Value, ShouldEqual, 10)
				So(view.Offers[0].Location, ShouldEqual, "http://x")
				So(view.Offers[0].Criteria.Device, ShouldResemble, []string{"ios"})
				So(view.Offers[1].Criteria.Hour, ShouldBeEmpty)
			})

			Convey("Then the stored record carries positional offer ids", func() {
				blob, err := store.Get(ctx, "buyer:b1")
				So(err, ShouldBeNil)
				stored, err := registry.Decode(blob)
				So(err, ShouldBeNil)
				So(stored.Offers[0].ID, ShouldEqual, "b1:0")
				So(stored.Offers[1].ID, ShouldEqual, "b1:1")
			})

			Convey("Then every criterion value is indexed", func() {
				for _, k := range []string{"device:ios", "hour:14", "day:2", "state:CA"} {
					members, err := store.IntersectSets(ctx, k)
					So(err, ShouldBeNil)
					So(members, ShouldResemble, []string{"b1-b1:0"})
				}
			})
		})

		Convey("When a buyer misses a required field", func() {
			b := buyer("b1", offer(10, "http://x", &model.Criteria{Hour: []int{14}, Day: []int{2}, State: []string{"CA"}}))
			err := svc.RegisterBuyer(ctx, b)

			Convey("Then it is a validation error and nothing is written", func() {
				So(errors.Is(err, model.ErrValidation), ShouldBeTrue)
				So(model.Message(err, ""), ShouldEqual, model.MsgInvalidSchema)
				blobs, sets := store.Len()
				So(blobs, ShouldEqual, 0)
				So(sets, ShouldEqual, 0)
			})
		})

		Convey("When a nil buyer is registered", func() {
			So(errors.Is(svc.RegisterBuyer(ctx, nil), model.ErrValidation), ShouldBeTrue)
		})

		Convey("When an unknown buyer is requested", func() {
			_, err := svc.GetBuyer(ctx, "nobody")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
			So(model.Message(err, ""), ShouldEqual, model.MsgBuyerNotFound)

			_, err = svc.GetBuyer(ctx, "  ")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When a buyer is re-registered with narrower criteria", func() {
			So(svc.RegisterBuyer(ctx, buyer("b1",
				offer(10, "http://x", &model.Criteria{Device: []string{"ios", "android"}, Hour: []int{14}, Day: []int{2}, State: []string{"CA"}}),
				offer(4, "http://z", criteria("ios", 14, 2, "CA")),
			)), ShouldBeNil)
			So(svc.RegisterBuyer(ctx, buyer("b1",
				offer(10, "http://x", criteria("ios", 14, 2, "CA")),
			)), ShouldBeNil)

			Convey("Then dropped criteria and offers no longer resolve", func() {
				_, err := svc.ResolveRequest(ctx, tuesday14, "android", "CA")
				So(errors.Is(err, model.ErrNoMatch), ShouldBeTrue)

				members, err := store.IntersectSets(ctx, "device:ios")
				So(err, ShouldBeNil)
				So(members, ShouldResemble, []string{"b1-b1:0"})
			})
		})
	})
}

func TestService_Resolve(t *testing.T) {
	Convey("Given a service with one registered buyer", t, func() {
		ctx := context.Background()
		svc := startService(repository.NewMemoryStore())
		defer svc.Stop()
		So(svc.RegisterBuyer(ctx, buyer("b1", offer(10, "http://x", criteria("ios", 14, 2, "CA")))), ShouldBeNil)

		Convey("A matching Tuesday 14:xx UTC request resolves to its location", func() {
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://x")
		})

		Convey("Zoneless and fractional timestamps are accepted", func() {
			for _, ts := range []string{"2024-01-02T14:05:00", "2024-01-02T14:59:59.999Z", "2024-01-02T14:00"} {
				loc, err := svc.ResolveRequest(ctx, ts, "ios", "CA")
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, "http://x")
			}
		})

		Convey("A different device does not match", func() {
			_, err := svc.ResolveRequest(ctx, tuesday14, "android", "CA")
			So(errors.Is(err, model.ErrNoMatch), ShouldBeTrue)
			So(model.Message(err, ""), ShouldEqual, model.MsgNoMatch)
		})

		Convey("A different hour does not match", func() {
			_, err := svc.ResolveRequest(ctx, "2024-01-02T15:00:00Z", "ios", "CA")
			So(errors.Is(err, model.ErrNoMatch), ShouldBeTrue)
		})

		Convey("Malformed requests are invalid", func() {
			_, err := svc.ResolveRequest(ctx, "yesterday", "ios", "CA")
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
			_, err = svc.ResolveRequest(ctx, tuesday14, "", "CA")
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
			_, err = svc.ResolveRequest(ctx, tuesday14, "ios", " ")
			So(errors.Is(err, model.ErrInvalidRequest), ShouldBeTrue)
		})
	})

	Convey("Given two buyers matching the same dimensions", t, func() {
		ctx := context.Background()
		svc := startService(repository.NewMemoryStore())
		defer svc.Stop()

		Convey("The higher value wins", func() {
			So(svc.RegisterBuyer(ctx, buyer("low", offer(5, "http://low", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
			So(svc.RegisterBuyer(ctx, buyer("high", offer(20, "http://high", criteria("ios", 14, 2, "CA")))), ShouldBeNil)

			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://high")
		})

		Convey("Ties go to the lowest buyer id, then the earliest offer", func() {
			So(svc.RegisterBuyer(ctx, buyer("zed", offer(7, "http://zed", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
			So(svc.RegisterBuyer(ctx, buyer("abe",
				offer(7, "http://abe-0", criteria("ios", 14, 2, "CA")),
				offer(7, "http://abe-1", criteria("ios", 14, 2, "CA")),
			)), ShouldBeNil)

			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://abe-0")
		})
	})

	Convey("Given a service deriving time in another zone", t, func() {
		ctx := context.Background()
		ny, err := time.LoadLocation("America/New_York")
		So(err, ShouldBeNil)
		svc := startService(repository.NewMemoryStore(), service.WithTimeZone(ny))
		defer svc.Stop()
		So(svc.RegisterBuyer(ctx, buyer("b1", offer(10, "http://x", criteria("ios", 9, 2, "CA")))), ShouldBeNil)

		Convey("Then 14:30 UTC on a Tuesday is 09:30 Tuesday in New York", func() {
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://x")
		})
	})
}

func TestService_StaleReferences(t *testing.T) {
	Convey("Given an index entry whose buyer record is gone", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := startService(store, service.WithRepairWorkerCount(1))
		defer svc.Stop()

		So(svc.RegisterBuyer(ctx, buyer("live", offer(5, "http://live", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
		ghost := model.Ref{BuyerID: "ghost", OfferID: "ghost:0"}
		for _, k := range []string{"hour:14", "day:2", "device:ios", "state:CA"} {
			So(store.AddToSet(ctx, k, ghost.String()), ShouldBeNil)
		}

		Convey("Then resolution skips it and the repair worker prunes it", func() {
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://live")

			pruned := false
			for i := 0; i < 200 && !pruned; i++ {
				members, err := store.IntersectSets(ctx, "device:ios")
				So(err, ShouldBeNil)
				pruned = len(members) == 1
				time.Sleep(5 * time.Millisecond)
			}
			So(pruned, ShouldBeTrue)
		})
	})

	Convey("Given only stale candidates", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := startService(store)
		defer svc.Stop()

		ghost := model.Ref{BuyerID: "ghost", OfferID: "ghost:0"}
		for _, k := range []string{"hour:14", "day:2", "device:ios", "state:CA"} {
			So(store.AddToSet(ctx, k, ghost.String()), ShouldBeNil)
		}

		Convey("Then the request has no match", func() {
			_, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(errors.Is(err, model.ErrNoMatch), ShouldBeTrue)
		})
	})

	Convey("Given an index entry for an offer the buyer no longer lists", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := startService(store, service.WithRepairWorkerCount(1))
		defer svc.Stop()

		So(svc.RegisterBuyer(ctx, buyer("b1", offer(5, "http://b1", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
		orphan := model.Ref{BuyerID: "b1", OfferID: "b1:7"}
		for _, k := range []string{"hour:14", "day:2", "device:ios", "state:CA"} {
			So(store.AddToSet(ctx, k, orphan.String()), ShouldBeNil)
		}

		Convey("Then the live offer still wins and the orphan is pruned", func() {
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
			So(err, ShouldBeNil)
			So(loc, ShouldEqual, "http://b1")

			pruned := false
			for i := 0; i < 200 && !pruned; i++ {
				members, err := store.IntersectSets(ctx, "state:CA")
				So(err, ShouldBeNil)
				pruned = len(members) == 1 && members[0] == "b1-b1:0"
				time.Sleep(5 * time.Millisecond)
			}
			So(pruned, ShouldBeTrue)
		})
	})
}

func TestService_OverwrittenCorruptRecord(t *testing.T) {
	Convey("Given a buyer whose stored record became unreadable", t, func() {
		ctx := context.Background()
		store := repository.NewMemoryStore()
		svc := startService(store, service.WithRepairWorkerCount(1))
		defer svc.Stop()

		So(svc.RegisterBuyer(ctx, buyer("b1", offer(10, "http://old-ios", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
		So(store.Put(ctx, registry.Key("b1"), []byte{0xff, 0x00}), ShouldBeNil)

		Convey("When it is re-registered with different criteria", func() {
			So(svc.RegisterBuyer(ctx, buyer("b1", offer(10, "http://new-android", criteria("android", 14, 2, "CA")))), ShouldBeNil)

			Convey("Then the old criteria no longer match and their entry is pruned", func() {
				_, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")
				So(errors.Is(err, model.ErrNoMatch), ShouldBeTrue)

				pruned := false
				for i := 0; i < 200 && !pruned; i++ {
					members, err := store.IntersectSets(ctx, "device:ios")
					So(err, ShouldBeNil)
					pruned = len(members) == 0
					time.Sleep(5 * time.Millisecond)
				}
				So(pruned, ShouldBeTrue)

				members, err := store.IntersectSets(ctx, "state:CA")
				So(err, ShouldBeNil)
				So(members, ShouldResemble, []string{"b1-b1:0"})
			})

			Convey("Then the new criteria resolve to the new location", func() {
				loc, err := svc.ResolveRequest(ctx, tuesday14, "android", "CA")
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, "http://new-android")
			})
		})
	})
}

// stallingStore refuses bulk reads and blocks single reads of the stalled
// keys until the caller gives up.
type stallingStore struct {
	repository.Store
	stalled map[string]bool
}

func (s *stallingStore) BulkGet(context.Context, ...string) ([][]byte, error) {
	return nil, errors.New("bulk read refused")
}

func (s *stallingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.stalled[key] {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.Store.Get(ctx, key)
}

func TestService_CandidateFetchFaults(t *testing.T) {
	Convey("Given two matching buyers behind a store that stalls on reads", t, func() {
		ctx := context.Background()
		store := &stallingStore{Store: repository.NewMemoryStore(), stalled: map[string]bool{}}
		svc := startService(store, service.WithFetchTimeout(20*time.Millisecond))
		defer svc.Stop()

		So(svc.RegisterBuyer(ctx, buyer("a", offer(50, "http://a", criteria("ios", 14, 2, "CA")))), ShouldBeNil)
		So(svc.RegisterBuyer(ctx, buyer("b", offer(10, "http://b", criteria("ios", 14, 2, "CA")))), ShouldBeNil)

		Convey("When only the higher bidder times out", func() {
			store.stalled[registry.Key("a")] = true
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")

			Convey("Then it is skipped and the other buyer wins", func() {
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, "http://b")
			})
		})

		Convey("When every candidate times out", func() {
			store.stalled[registry.Key("a")] = true
			store.stalled[registry.Key("b")] = true
			_, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")

			Convey("Then the store is reported unavailable", func() {
				So(errors.Is(err, model.ErrStore), ShouldBeTrue)
				So(errors.Is(err, model.ErrNoMatch), ShouldBeFalse)
			})
		})

		Convey("When no candidate stalls", func() {
			loc, err := svc.ResolveRequest(ctx, tuesday14, "ios", "CA")

			Convey("Then single reads still pick the highest value", func() {
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, "http://a")
			})
		})
	})
}
