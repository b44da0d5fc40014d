package crawler

import (
	"fmt"
	"runtime"
	"time"
)

// Discovery strategies.
const (
	DiscoveryBinary = "binary"
	DiscoveryLinear = "linear"
)

// Phone extraction strategies.
const (
	PhoneNone    = "none"
	PhoneStatic  = "static"
	PhoneBrowser = "browser"
)

// Commit granularities for the listing store.
const (
	CommitRecord = "record"
	CommitBatch  = "batch"
)

// Config captures every knob that influences a crawl run.
// It is decoupled from Viper so the pipeline can be built and tested
// without touching the process environment.
type Config struct {
	BaseURL           string
	PerPage           int
	ListingSelector   string
	DiscoveryStrategy string
	MaxPages          int
	EmptyStreak       int
	PageParallelism   int
	Workers           int
	RequestTimeout    time.Duration
	PhoneStrategy     string
	CommitMode        string
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("site.base_url must be set")
	}
	if c.PerPage <= 0 {
		return fmt.Errorf("site.per_page must be > 0")
	}
	if c.ListingSelector == "" {
		return fmt.Errorf("site.listing_selector must be set")
	}
	switch c.DiscoveryStrategy {
	case DiscoveryBinary, DiscoveryLinear:
	default:
		return fmt.Errorf("discovery.strategy %q is not supported", c.DiscoveryStrategy)
	}
	if c.MaxPages <= 0 {
		return fmt.Errorf("discovery.max_pages must be > 0")
	}
	if c.DiscoveryStrategy == DiscoveryLinear && c.EmptyStreak <= 0 {
		return fmt.Errorf("discovery.empty_streak must be > 0 for linear discovery")
	}
	if c.PageParallelism < 0 {
		return fmt.Errorf("collector.parallelism must be >= 0")
	}
	if c.Workers <= 0 {
		return fmt.Errorf("fetcher.workers must be > 0")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	switch c.PhoneStrategy {
	case PhoneNone, PhoneStatic, PhoneBrowser:
	default:
		return fmt.Errorf("phone.strategy %q is not supported", c.PhoneStrategy)
	}
	switch c.CommitMode {
	case CommitRecord, CommitBatch:
	default:
		return fmt.Errorf("store.commit_mode %q is not supported", c.CommitMode)
	}
	return nil
}

// Parallelism returns the page-level fan-out degree.
func (c Config) Parallelism() int {
	if c.PageParallelism > 0 {
		return c.PageParallelism
	}
	return runtime.NumCPU()
}
