package metrics_test

import (
	"bytes"
	"log/slog"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/auth-proxy/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("IncrementRequests", func() {
		It("should track multiple routes separately", func() {
			m.IncrementRequests("proxy")
			m.IncrementRequests("health")
			m.IncrementRequests("proxy")

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.Routes["proxy"].Requests).To(Equal(int64(2)))
			Expect(snap.Routes["health"].Requests).To(Equal(int64(1)))
		})
	})

	Describe("RecordResponse", func() {
		It("should record response time and status code", func() {
			m.RecordResponse("proxy", 100*time.Millisecond, 200)
			m.RecordResponse("proxy", 200*time.Millisecond, 200)

			route := m.Snapshot().Routes["proxy"]
			Expect(route.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(route.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should track different status codes", func() {
			m.RecordResponse("proxy", 100*time.Millisecond, 200)
			m.RecordResponse("proxy", 150*time.Millisecond, 404)
			m.RecordResponse("proxy", 200*time.Millisecond, 500)

			route := m.Snapshot().Routes["proxy"]
			Expect(route.StatusCodes).To(HaveLen(3))
			Expect(route.StatusCodes[404]).To(Equal(int64(1)))
		})

		It("should calculate percentiles correctly", func() {
			for i := 1; i <= 100; i++ {
				m.RecordResponse("proxy", time.Duration(i)*time.Millisecond, 200)
			}

			route := m.Snapshot().Routes["proxy"]
			Expect(route.P50Response).To(BeNumerically("~", 50*time.Millisecond, 1*time.Millisecond))
			Expect(route.P95Response).To(BeNumerically("~", 95*time.Millisecond, 1*time.Millisecond))
			Expect(route.P99Response).To(BeNumerically("~", 99*time.Millisecond, 1*time.Millisecond))
		})

		It("should limit stored response times to 1000", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordResponse("proxy", time.Duration(i)*time.Millisecond, 200)
			}

			Expect(m.Snapshot().Routes["proxy"].AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
		})
	})

	Describe("RecordTransportFailure", func() {
		It("should count failures without a status code", func() {
			m.RecordTransportFailure("proxy", 10*time.Millisecond)

			snap := m.Snapshot()
			Expect(snap.TotalFailures).To(Equal(int64(1)))
			Expect(snap.Routes["proxy"].TransportFailures).To(Equal(int64(1)))
			Expect(snap.Routes["proxy"].StatusCodes).To(BeEmpty())
		})
	})

	Describe("UpdateUpstreamHealth", func() {
		It("should be unknown until reported", func() {
			Expect(m.Snapshot().UpstreamHealthy).To(BeNil())
		})

		It("should track health status changes", func() {
			m.UpdateUpstreamHealth(true)
			Expect(*m.Snapshot().UpstreamHealthy).To(BeTrue())

			m.UpdateUpstreamHealth(false)
			Expect(*m.Snapshot().UpstreamHealthy).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("should include uptime", func() {
			time.Sleep(10 * time.Millisecond)
			Expect(m.Snapshot().Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(0)))
			Expect(snap.Routes).To(BeEmpty())
		})

		It("should return independent snapshots", func() {
			m.RecordResponse("proxy", time.Millisecond, 200)
			snap1 := m.Snapshot()
			m.RecordResponse("proxy", time.Millisecond, 200)

			Expect(snap1.Routes["proxy"].StatusCodes[200]).To(Equal(int64(1)))
			Expect(m.Snapshot().Routes["proxy"].StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should render as a structured log group", func() {
			m.IncrementRequests("proxy")
			m.RecordResponse("proxy", time.Millisecond, 404)

			var buf bytes.Buffer
			log := slog.New(slog.NewTextHandler(&buf, nil))
			log.Info("final metrics", slog.Any("metrics", m.Snapshot()))

			Expect(buf.String()).To(ContainSubstring("metrics.total_requests=1"))
			Expect(buf.String()).To(ContainSubstring("metrics.proxy.status_404=1"))
		})
	})
})
