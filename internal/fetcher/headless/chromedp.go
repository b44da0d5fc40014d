// Package headless reveals lazily loaded phone numbers with a headless browser.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	// PhoneSelector matches the phone element inside the seller contact block.
	PhoneSelector = "div#phonesBlock div.phones_item span.phone"
	// PhoneAttr carries the full number once the element has been clicked.
	PhoneAttr = "data-phone-number"

	defaultWaitTimeout = 6 * time.Second
	defaultSettle      = 2 * time.Second
	defaultNavTimeout  = 45 * time.Second
)

// Config controls the behavior of the phone revealer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	Headers           http.Header
	NavigationTimeout time.Duration
	// WaitTimeout bounds how long the phone element may take to become visible.
	WaitTimeout time.Duration
	// Settle is the pause after clicking before the number is read.
	Settle   time.Duration
	Selector string
}

// PhoneRevealer implements crawler.PhoneRevealer using chromedp and headless Chrome.
type PhoneRevealer struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a revealer backed by chromedp. The browser process is
// started lazily on first use.
func NewChromedp(cfg Config) (*PhoneRevealer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = defaultWaitTimeout
	}
	if cfg.Settle < 0 {
		cfg.Settle = defaultSettle
	}
	if cfg.Selector == "" {
		cfg.Selector = PhoneSelector
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &PhoneRevealer{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

// Close cancels the allocator context and shuts the browser down.
func (r *PhoneRevealer) Close() {
	r.allocCancel()
}

// Reveal renders the listing page, clicks the phone element and returns the
// revealed number. The reveal attribute wins over the visible text.
func (r *PhoneRevealer) Reveal(ctx context.Context, rawURL string) (string, error) {
	if err := r.acquire(ctx); err != nil {
		return "", err
	}
	defer r.release()

	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()
	defer forwardCancel(ctx, taskCancel)()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.NavigationTimeout)
	defer cancel()

	var (
		attr    string
		hasAttr bool
		text    string
	)
	sel := r.cfg.Selector
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(rawURL),
		r.waitVisible(sel),
		chromedp.Click(sel, chromedp.ByQuery, chromedp.NodeVisible),
		chromedp.Sleep(r.cfg.Settle),
		chromedp.AttributeValue(sel, PhoneAttr, &attr, &hasAttr, chromedp.ByQuery),
		chromedp.Text(sel, &text, chromedp.ByQuery),
	}
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", fmt.Errorf("chromedp run: %w", err)
	}
	return pickPhone(attr, hasAttr, text), nil
}

func (r *PhoneRevealer) waitVisible(sel string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		waitCtx, cancel := context.WithTimeout(ctx, r.cfg.WaitTimeout)
		defer cancel()
		if err := chromedp.WaitVisible(sel, chromedp.ByQuery).Do(waitCtx); err != nil {
			return fmt.Errorf("wait for phone element: %w", err)
		}
		return nil
	})
}

func (r *PhoneRevealer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(r.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(r.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (r *PhoneRevealer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *PhoneRevealer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

func pickPhone(attr string, hasAttr bool, text string) string {
	if hasAttr && strings.TrimSpace(attr) != "" {
		return strings.TrimSpace(attr)
	}
	return strings.TrimSpace(text)
}

// forwardCancel cancels the browser tab when the caller's context ends.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	stop := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-stop:
		}
	}()
	return func() { close(stop) }
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
