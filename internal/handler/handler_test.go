package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/auth-proxy/config"
	"github.com/angeloszaimis/auth-proxy/internal/backend"
	"github.com/angeloszaimis/auth-proxy/internal/handler"
	"github.com/angeloszaimis/auth-proxy/internal/metrics"
	"github.com/angeloszaimis/auth-proxy/internal/state"
)

type recordedRequest struct {
	Method string
	Path   string
	Auth   string
}

var _ = Describe("Handler", func() {
	var (
		h         *handler.Handler
		routes    http.Handler
		upstream  *httptest.Server
		respond   http.HandlerFunc
		mu        sync.Mutex
		received  []recordedRequest
		cfg       config.Config
		collector *metrics.Collector
		log       *slog.Logger
	)

	serve := func(method, target string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		routes.ServeHTTP(w, httptest.NewRequest(method, target, nil))
		return w
	}

	build := func() {
		st := state.New(cfg, backend.NewHTTPClient(backend.ClientOptions{}))
		h = handler.New(log, st, collector)
		routes = h.Routes()
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(GinkgoWriter, nil))
		collector = nil
		received = nil
		respond = func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("upstream:" + r.URL.Path))
		}

		upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			received = append(received, recordedRequest{
				Method: r.Method,
				Path:   r.URL.Path,
				Auth:   r.Header.Get("Authorization"),
			})
			mu.Unlock()
			respond(w, r)
		}))

		cfg = config.Default()
		cfg.BackendURL = upstream.URL
		cfg.SecretToken = "top-secret-token"
		build()
	})

	AfterEach(func() {
		upstream.Close()
	})

	upstreamRequests := func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), received...)
	}

	Describe("Health", func() {
		It("should return 202 with the fixed body", func() {
			w := serve(http.MethodGet, "/health")
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Body.String()).To(Equal(`{"data":"OK","code":200}`))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))
		})

		It("should not depend on the upstream", func() {
			upstream.Close()
			w := serve(http.MethodGet, "/health")
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Body.String()).To(Equal(`{"data":"OK","code":200}`))
			Expect(upstreamRequests()).To(BeEmpty())
		})
	})

	Describe("Config", func() {
		It("should echo the backend URL with 202", func() {
			w := serve(http.MethodGet, "/config")
			Expect(w.Code).To(Equal(http.StatusAccepted))
			Expect(w.Body.String()).To(MatchJSON(`{"data":"backend_url:` + upstream.URL + `","code":200}`))
		})

		DescribeTable("should never include the secret",
			func(secret string) {
				cfg.SecretToken = secret
				build()
				w := serve(http.MethodGet, "/config")
				Expect(w.Body.String()).NotTo(ContainSubstring(secret))
			},
			Entry("default secret", config.DefaultSecretToken),
			Entry("custom secret", "another-token-value"),
			Entry("secret resembling a url", "http-secret-x"),
		)
	})

	Describe("NotFound", func() {
		DescribeTable("should answer unmatched requests with 404",
			func(method, target string) {
				w := serve(method, target)
				Expect(w.Code).To(Equal(http.StatusNotFound))
				Expect(w.Body.String()).To(Equal(`{"data":"Unidentified endpoint","code":404}`))
				Expect(upstreamRequests()).To(BeEmpty())
			},
			Entry("root path", http.MethodGet, "/"),
			Entry("POST", http.MethodPost, "/items"),
			Entry("PUT on health", http.MethodPut, "/health"),
			Entry("DELETE", http.MethodDelete, "/config"),
		)
	})

	Describe("Proxy", func() {
		DescribeTable("should issue exactly one GET to the trimmed path",
			func(target, expectedPath string) {
				w := serve(http.MethodGet, target)
				Expect(w.Code).To(Equal(http.StatusOK))

				reqs := upstreamRequests()
				Expect(reqs).To(HaveLen(1))
				Expect(reqs[0].Method).To(Equal(http.MethodGet))
				Expect(reqs[0].Path).To(Equal(expectedPath))
				Expect(w.Body.String()).To(Equal("upstream:" + expectedPath))
			},
			Entry("simple path", "/users", "/users"),
			Entry("nested path", "/api/v1/items", "/api/v1/items"),
			Entry("trailing slash", "/users/", "/users"),
			Entry("many trailing slashes", "/users///", "/users"),
			Entry("health subpath", "/health/", "/health"),
			Entry("query dropped", "/search?q=1", "/search"),
			Entry("encoded trailing slash", "/users%2F", "/users"),
			Entry("mixed trailing slashes", "/users/%2f/", "/users"),
		)

		It("should return 200 with the body of an upstream 404", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte("not found"))
			}

			w := serve(http.MethodGet, "/missing")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("not found"))
		})

		It("should return 200 with the body of an upstream 500", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			}

			w := serve(http.MethodGet, "/broken")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("boom\n"))
		})

		It("should return an empty body when the upstream body is not text", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte{0xc3, 0x28})
			}

			w := serve(http.MethodGet, "/binary")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.Len()).To(BeZero())
		})

		It("should forward the Authorization header present on the request", func() {
			req := httptest.NewRequest(http.MethodGet, "/secure", nil)
			req.Header.Set("Authorization", "Bearer injected")
			routes.ServeHTTP(httptest.NewRecorder(), req)

			reqs := upstreamRequests()
			Expect(reqs).To(HaveLen(1))
			Expect(reqs[0].Auth).To(Equal("Bearer injected"))
		})

		Context("when the upstream is unreachable", func() {
			BeforeEach(func() {
				upstream.Close()
			})

			It("should return 502 with a proxy error body", func() {
				done := make(chan *httptest.ResponseRecorder, 1)
				go func() {
					done <- serve(http.MethodGet, "/anything")
				}()

				var w *httptest.ResponseRecorder
				Eventually(done, 5*time.Second).Should(Receive(&w))
				Expect(w.Code).To(Equal(http.StatusBadGateway))
				Expect(w.Body.String()).To(HavePrefix("Proxy error: "))
				Expect(len(w.Body.String())).To(BeNumerically(">", len("Proxy error: ")))
			})
		})

		Context("when the backend URL is not a URL", func() {
			It("should return 502", func() {
				cfg.BackendURL = config.DefaultBackendURL
				build()

				w := serve(http.MethodGet, "/x")
				Expect(w.Code).To(Equal(http.StatusBadGateway))
				Expect(w.Body.String()).To(HavePrefix("Proxy error: "))
			})
		})

		It("should serve concurrent requests independently", func() {
			release := make(chan struct{})
			respond = func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/slow" {
					<-release
				}
				w.Write([]byte(r.URL.Path))
			}
			defer close(release)

			slow := make(chan *httptest.ResponseRecorder, 1)
			go func() {
				slow <- serve(http.MethodGet, "/slow")
			}()

			Eventually(func() int { return len(upstreamRequests()) }).Should(Equal(1))

			fast := serve(http.MethodGet, "/fast")
			Expect(fast.Code).To(Equal(http.StatusOK))
			Expect(fast.Body.String()).To(Equal("/fast"))
			Consistently(slow, 50*time.Millisecond).ShouldNot(Receive())
		})

		It("should abort the upstream fetch when the client goes away", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			}

			ctx, cancel := context.WithCancel(context.Background())
			req := httptest.NewRequest(http.MethodGet, "/hang", nil).WithContext(ctx)
			w := httptest.NewRecorder()

			finished := make(chan struct{})
			go func() {
				defer close(finished)
				routes.ServeHTTP(w, req)
			}()

			Eventually(func() int { return len(upstreamRequests()) }).Should(Equal(1))
			cancel()
			Eventually(finished, 2*time.Second).Should(BeClosed())
		})
	})

	Describe("metrics", func() {
		var (
			ctx    context.Context
			cancel context.CancelFunc
		)

		BeforeEach(func() {
			ctx, cancel = context.WithCancel(context.Background())
			collector = metrics.NewCollector(100, log)
			collector.Start(ctx)
			build()
		})

		AfterEach(func() {
			cancel()
		})

		It("should record proxy outcomes with the upstream status", func() {
			respond = func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			}
			serve(http.MethodGet, "/a")
			serve(http.MethodGet, "/health")

			Eventually(func() int64 {
				return collector.Snapshot().Routes[handler.RouteProxy].StatusCodes[http.StatusNotFound]
			}).Should(Equal(int64(1)))
			Eventually(func() int64 {
				return collector.Snapshot().Routes[handler.RouteHealth].StatusCodes[http.StatusAccepted]
			}).Should(Equal(int64(1)))
		})

		It("should record transport failures", func() {
			upstream.Close()
			serve(http.MethodGet, "/a")

			Eventually(func() int64 {
				return collector.Snapshot().Routes[handler.RouteProxy].TransportFailures
			}).Should(Equal(int64(1)))
		})
	})
})

var _ = Describe("APIResponse", func() {
	It("should use lower-case JSON keys", func() {
		w := httptest.NewRecorder()
		h := handler.New(slog.New(slog.NewTextHandler(io.Discard, nil)),
			state.New(config.Default(), http.DefaultClient), nil)
		h.Health(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(strings.Contains(w.Body.String(), `"data"`)).To(BeTrue())
		Expect(strings.Contains(w.Body.String(), `"code"`)).To(BeTrue())
	})
})
