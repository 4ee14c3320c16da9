package session

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// Surface is the browser-backed navigable surface the session manager drives.
// The browser's cookie store is the single source of truth for
// authentication state; everything else in the process synchronizes from it.
type Surface interface {
	// Navigate loads url and waits for load completion, bounded by timeout.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Cookies returns the browser's current cookie set.
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	// CurrentURL returns the surface's current location after redirects.
	CurrentURL(ctx context.Context) (string, error)
	// DeleteCookies removes cookies whose domain contains pattern.
	DeleteCookies(ctx context.Context, pattern string) error
	Close() error
}

// SurfaceFactory creates a Surface; visible surfaces are used for
// interactive login, off-screen ones for background refresh.
type SurfaceFactory func(visible bool) (Surface, error)

// chromeSurface implements Surface on a dedicated chromedp browser context.
type chromeSurface struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// NewChromeSurface starts a Chrome instance and returns a Surface bound to
// one tab of it.
func NewChromeSurface(visible bool) (Surface, error) {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !visible {
		opts = append(opts, chromedp.Flag("headless", true))
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	s := &chromeSurface{
		ctx: tabCtx,
		cancel: func() {
			tabCancel()
			allocCancel()
		},
	}
	return s, nil
}

func (s *chromeSurface) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- chromedp.Run(navCtx,
			chromedp.Navigate(url),
			chromedp.WaitReady("body"),
		)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}

func (s *chromeSurface) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	var out []*http.Cookie
	err := chromedp.Run(s.ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		cookies, err := network.GetCookies().Do(cdpCtx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			out = append(out, &http.Cookie{
				Name:   c.Name,
				Value:  c.Value,
				Domain: c.Domain,
				Path:   c.Path,
				Secure: c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *chromeSurface) CurrentURL(ctx context.Context) (string, error) {
	var loc string
	if err := chromedp.Run(s.ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (s *chromeSurface) DeleteCookies(ctx context.Context, pattern string) error {
	return chromedp.Run(s.ctx, chromedp.ActionFunc(func(cdpCtx context.Context) error {
		cookies, err := network.GetCookies().Do(cdpCtx)
		if err != nil {
			return err
		}
		for _, c := range cookies {
			if !strings.Contains(c.Domain, pattern) {
				continue
			}
			if err := network.DeleteCookies(c.Name).WithDomain(c.Domain).WithPath(c.Path).Do(cdpCtx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (s *chromeSurface) Close() error {
	s.cancel()
	return nil
}
