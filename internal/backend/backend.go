package backend

import (
	"strings"
	"sync"
	"time"
)

// Backend is the single upstream the proxy forwards to. The base URL and the
// HTTP client are fixed at construction; only the bookkeeping below changes.
type Backend struct {
	baseURL string
	client  Doer

	mutex            sync.Mutex
	isHealthy        bool
	inFlight         int
	ewmaResponseTime time.Duration
	hasEWMA          bool
}

const ewmaAlpha = 0.2

// New creates a Backend for baseURL that sends requests through client.
// The backend starts in a healthy state.
func New(baseURL string, client Doer) *Backend {
	return &Backend{
		baseURL:   baseURL,
		client:    client,
		isHealthy: true,
	}
}

// URL returns the configured upstream base URL.
func (b *Backend) URL() string {
	return b.baseURL
}

// TargetURL maps an inbound path onto the upstream. Trailing slashes are
// stripped from the path; the base URL is used as configured.
func (b *Backend) TargetURL(path string) string {
	return TargetURL(b.baseURL, path)
}

// TargetURL joins baseURL and path with a single separator after removing
// trailing slash characters from path. path is in escaped form, so an
// encoded slash ("%2F") at the end is removed as well.
func TargetURL(baseURL, path string) string {
	return baseURL + "/" + trimTrailingSlashes(path)
}

func trimTrailingSlashes(path string) string {
	for {
		switch {
		case strings.HasSuffix(path, "/"):
			path = path[:len(path)-1]
		case len(path) >= 3 && strings.EqualFold(path[len(path)-3:], "%2F"):
			path = path[:len(path)-3]
		default:
			return path
		}
	}
}

func (b *Backend) incrementInFlight() {
	b.mutex.Lock()
	b.inFlight++
	b.mutex.Unlock()
}

func (b *Backend) decrementInFlight() {
	b.mutex.Lock()
	if b.inFlight > 0 {
		b.inFlight--
	}
	b.mutex.Unlock()
}

// InFlight returns the number of outbound requests currently in progress.
func (b *Backend) InFlight() int {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.inFlight
}

// IsHealthy returns true if the upstream was reachable on the last probe.
func (b *Backend) IsHealthy() bool {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.isHealthy
}

// SetHealthy updates the upstream's reachability status.
// Returns true if the status changed, false if it was already in that state.
func (b *Backend) SetHealthy(healthy bool) (changed bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.isHealthy == healthy {
		return false
	}

	b.isHealthy = healthy
	return true
}

// RecordResponse updates the exponentially weighted moving average (EWMA)
// response time using the latest exchange duration.
func (b *Backend) RecordResponse(duration time.Duration) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		b.ewmaResponseTime = duration
		b.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	b.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(b.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the exponentially weighted moving average response time.
// Returns 0 if no responses have been recorded yet.
func (b *Backend) EWMATime() time.Duration {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.hasEWMA {
		return 0
	}

	return b.ewmaResponseTime
}
