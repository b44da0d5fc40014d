// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"net/http"
	"sync/atomic"
	"time"
)

var (
	// ErrNotFound is returned by stores when no listing exists for a URL.
	ErrNotFound = errors.New("listing not found")
	// ErrUnexpectedStatus marks a fetch that completed with a non-success status.
	ErrUnexpectedStatus = errors.New("unexpected status code")
)

// Listing is the single current record stored per detail-page URL.
// Optional attributes are pointers so a selector miss is stored as NULL.
type Listing struct {
	URL           string    `json:"url"`
	Title         *string   `json:"title"`
	PriceUSD      *int64    `json:"price_usd"`
	Odometer      *int64    `json:"odometer"`
	Username      *string   `json:"username"`
	PhoneNumber   *string   `json:"phone_number"`
	ImageURL      *string   `json:"image_url"`
	ImagesCount   *int64    `json:"images_count"`
	CarNumber     *string   `json:"car_number"`
	CarVIN        *string   `json:"car_vin"`
	DatetimeFound time.Time `json:"datetime_found"`
}

// Page is the result of a successful fetch.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

// Run states.
const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// RunSummary describes one full pipeline run.
type RunSummary struct {
	RunID         string    `json:"run_id"`
	Status        RunStatus `json:"status"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Pages         int       `json:"pages"`
	Links         int       `json:"links"`
	Fetched       int64     `json:"fetched"`
	FetchFailed   int64     `json:"fetch_failed"`
	Stored        int64     `json:"stored"`
	PersistFailed int64     `json:"persist_failed"`
	Error         string    `json:"error,omitempty"`
}

// Counters accumulates per-URL outcomes across concurrent workers.
type Counters struct {
	Fetched       atomic.Int64
	FetchFailed   atomic.Int64
	Stored        atomic.Int64
	PersistFailed atomic.Int64
}

// Apply copies the counter values into the summary.
func (c *Counters) Apply(s *RunSummary) {
	s.Fetched = c.Fetched.Load()
	s.FetchFailed = c.FetchFailed.Load()
	s.Stored = c.Stored.Load()
	s.PersistFailed = c.PersistFailed.Load()
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string { return &s }

// Int64Ptr returns a pointer to a copy of n.
func Int64Ptr(n int64) *int64 { return &n }
