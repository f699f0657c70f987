package metrics_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sardanna/roundrobin-lb/internal/metrics"
)

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelError, // Suppress logs in tests
		}))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
		time.Sleep(10 * time.Millisecond) // Allow goroutine to finish
	})

	Describe("NewCollector", func() {
		It("should create a collector with specified buffer size", func() {
			c := metrics.NewCollector(500, log)
			Expect(c).NotTo(BeNil())
		})
	})

	Describe("Emit", func() {
		It("should be safe on a nil collector", func() {
			var c *metrics.Collector
			c.Emit(metrics.Event{Type: metrics.EventRequestReceived})
		})

		It("should drop events when the buffer is full rather than block", func() {
			c := metrics.NewCollector(1, log)
			for i := 0; i < 10; i++ {
				c.Emit(metrics.Event{Type: metrics.EventRequestReceived, Endpoint: "x"})
			}
		})
	})

	Describe("Start and event processing", func() {
		It("should process request and selection events", func() {
			collector.Start(ctx)

			collector.Emit(metrics.Event{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
				Endpoint:  "http://localhost:8081",
			})
			collector.Emit(metrics.Event{
				Type:      metrics.EventEndpointSelected,
				Timestamp: time.Now(),
				Endpoint:  "http://localhost:8081",
			})

			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}, "500ms", "10ms").Should(Equal(int64(1)))

			snap := collector.Snapshot()
			Expect(snap.Endpoints["http://localhost:8081"].Selections).To(Equal(int64(1)))
		})

		It("should process response completion events", func() {
			collector.Start(ctx)

			collector.Emit(metrics.Event{
				Type:       metrics.EventResponseCompleted,
				Timestamp:  time.Now(),
				Endpoint:   "http://localhost:8081",
				Duration:   120 * time.Millisecond,
				StatusCode: 201,
			})

			Eventually(func() int64 {
				return collector.Snapshot().Endpoints["http://localhost:8081"].StatusCodes[201]
			}, "500ms", "10ms").Should(Equal(int64(1)))
		})

		It("should process demotion and promotion events", func() {
			collector.Start(ctx)

			collector.Emit(metrics.Event{
				Type:      metrics.EventEndpointDemoted,
				Timestamp: time.Now(),
				Endpoint:  "http://localhost:8082",
			})
			collector.Emit(metrics.Event{
				Type:      metrics.EventEndpointPromoted,
				Timestamp: time.Now(),
				Endpoint:  "http://localhost:8082",
			})

			Eventually(func() int64 {
				return collector.Snapshot().Endpoints["http://localhost:8082"].Promotions
			}, "500ms", "10ms").Should(Equal(int64(1)))

			snap := collector.Snapshot()
			Expect(snap.Endpoints["http://localhost:8082"].Demotions).To(Equal(int64(1)))
			Expect(snap.Endpoints["http://localhost:8082"].Active).To(BeTrue())
		})

		It("should drain buffered events on shutdown", func() {
			collector.Start(ctx)

			for i := 0; i < 20; i++ {
				collector.Emit(metrics.Event{
					Type:      metrics.EventRequestReceived,
					Timestamp: time.Now(),
					Endpoint:  "http://localhost:8081",
				})
			}
			cancel()

			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}, "500ms", "10ms").Should(Equal(int64(20)))
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)

			collector.Emit(metrics.Event{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
				Endpoint:  "http://localhost:8081",
			})

			Eventually(func() int64 {
				return collector.Snapshot().TotalRequests
			}, "500ms", "10ms").Should(Equal(int64(1)))

			rec := httptest.NewRecorder()
			req := httptest.NewRequest("GET", "/metrics", nil)
			collector.Handler()(rec, req)

			Expect(rec.Code).To(Equal(200))
			Expect(rec.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(rec.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})
	})
})
