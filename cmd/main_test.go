package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/adroute/internal/config"
	"github.com/okian/adroute/pkg/logger"
)

func init() {
	_ = logger.Init()
}

func TestNewStore(t *testing.T) {
	convey.Convey("Given a configuration", t, func() {
		cfg := config.New()

		convey.Convey("When the memory store is selected", func() {
			cfg.Store = config.StoreMemory
			store := newStore(cfg)
			defer store.Close()

			convey.So(store.Kind(), convey.ShouldEqual, config.StoreMemory)
		})

		convey.Convey("When the redis store is selected", func() {
			mr := miniredis.RunT(t)
			cfg.Store = config.StoreRedis
			cfg.RedisAddr = mr.Addr()
			store := newStore(cfg)
			defer store.Close()

			convey.So(store.Kind(), convey.ShouldEqual, config.StoreRedis)
			convey.So(store.Ping(context.Background()), convey.ShouldBeNil)
		})
	})
}

func TestNewService(t *testing.T) {
	convey.Convey("Given a memory-backed configuration", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory
		cfg.TimeZone = "America/New_York"
		cfg.RecordCodec = config.CodecCBOR

		convey.Convey("When the service is built and started", func() {
			svc, err := newService(cfg, newStore(cfg))
			convey.So(err, convey.ShouldBeNil)
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			convey.Convey("Then the configuration is reflected in its stats", func() {
				stats := svc.GetStats(context.Background())
				convey.So(stats.Store, convey.ShouldEqual, config.StoreMemory)
				convey.So(stats.RecordCodec, convey.ShouldEqual, config.CodecCBOR)
				convey.So(stats.TimeZone, convey.ShouldEqual, "America/New_York")
				convey.So(stats.RepairQueueCapacity, convey.ShouldEqual, cfg.RepairQueueSize)
			})

			convey.Convey("Then the metrics updaters run without panicking", func() {
				convey.So(updateSystemMetrics, convey.ShouldNotPanic)
				convey.So(func() { updateServiceMetrics(context.Background(), svc) }, convey.ShouldNotPanic)

				ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
				defer cancel()
				convey.So(func() { startSystemMetricsUpdater(ctx) }, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When the codec is unknown", func() {
			cfg.RecordCodec = "xml"
			_, err := newService(cfg, newStore(cfg))
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestNewHandler(t *testing.T) {
	convey.Convey("Given the assembled HTTP handler", t, func() {
		cfg := config.New()
		cfg.Store = config.StoreMemory
		svc, err := newService(cfg, newStore(cfg))
		convey.So(err, convey.ShouldBeNil)
		convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
		defer svc.Stop()
		h := newHandler(cfg, svc)

		serve := func(method, target, body string) *httptest.ResponseRecorder {
			req := httptest.NewRequest(method, target, strings.NewReader(body))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec
		}

		convey.Convey("Then a registered buyer can be routed to end to end", func() {
			rec := serve(http.MethodPost, "/buyers", `{"id":"b1","offers":[{"value":5,"location":"http://b1","criteria":{"device":["ios"],"hour":[14],"day":[2],"state":["CA"]}}]}`)
			convey.So(rec.Code, convey.ShouldEqual, http.StatusCreated)

			rec = serve(http.MethodGet, "/route?timestamp=2024-01-02T14:30:00Z&device=ios&state=CA", "")
			convey.So(rec.Code, convey.ShouldEqual, http.StatusFound)
			convey.So(rec.Header().Get("Location"), convey.ShouldEqual, "http://b1")
			convey.So(rec.Header().Get("X-Request-ID"), convey.ShouldNotBeEmpty)
		})

		convey.Convey("Then the docs are served next to the API", func() {
			convey.So(serve(http.MethodGet, "/openapi.yaml", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(serve(http.MethodGet, "/api-docs", "").Code, convey.ShouldEqual, http.StatusOK)
			convey.So(serve(http.MethodGet, "/healthz", "").Code, convey.ShouldEqual, http.StatusOK)
		})

		convey.Convey("Then unknown paths are 404", func() {
			convey.So(serve(http.MethodGet, "/", "").Code, convey.ShouldEqual, http.StatusNotFound)
		})
	})
}
