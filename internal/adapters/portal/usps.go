// Package portal automates the USPS EPF web portal with a headless browser:
// form login, listing-page scrape, and authenticated file downloads.
package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
	"github.com/ternarybob/colligo/internal/interfaces"
)

// USPSPortal drives the EPF portal through a single managed browser
// instance. The browser authenticates lazily on first use; downloads reuse
// the browser's session cookies over plain HTTP so large files never stream
// through the DevTools protocol.
type USPSPortal struct {
	cfg    common.USPSConfig
	http   *http.Client
	logger arbor.ILogger

	mu              sync.Mutex
	browserCtx      context.Context
	browserCancel   context.CancelFunc
	allocatorCancel context.CancelFunc
	authenticated   bool
}

// NewUSPSPortal creates the portal adapter. The browser is not launched
// until the first listing or download request.
func NewUSPSPortal(cfg common.USPSConfig, logger arbor.ILogger) *USPSPortal {
	return &USPSPortal{
		cfg:    cfg,
		http:   &http.Client{Timeout: 10 * time.Minute},
		logger: logger,
	}
}

// FetchListing logs in if needed, loads the file listing page, and parses it
func (p *USPSPortal) FetchListing(ctx context.Context) ([]interfaces.RemoteFile, error) {
	browserCtx, err := p.ensureSession(ctx)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(browserCtx, p.cfg.BrowserTimeout)
	defer cancel()

	var html string
	err = chromedp.Run(runCtx,
		chromedp.Navigate(p.cfg.PortalURL+"/files"),
		chromedp.WaitVisible(`#file-listing`, chromedp.ByID),
		chromedp.Sleep(p.cfg.SettleDelay),
		chromedp.OuterHTML(`#file-listing`, &html, chromedp.ByID),
	)
	if err != nil {
		p.invalidate()
		return nil, fmt.Errorf("load file listing: %w", err)
	}

	listing, err := parseListing(html)
	if err != nil {
		return nil, err
	}

	p.logger.Debug().Int("files", len(listing)).Msg("Portal listing fetched")
	return listing, nil
}

// Download fetches one portal file to destPath using the browser session's
// cookies. The download streams to a temporary sibling and renames on
// success.
func (p *USPSPortal) Download(ctx context.Context, file interfaces.RemoteFile, destPath string) (int64, error) {
	browserCtx, err := p.ensureSession(ctx)
	if err != nil {
		return 0, err
	}

	cookies, err := p.sessionCookies(browserCtx)
	if err != nil {
		return 0, err
	}

	url := fmt.Sprintf("%s/download/%s", p.cfg.PortalURL, file.RemoteID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	for _, c := range cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download %s: %w", file.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			p.invalidate()
		}
		return 0, fmt.Errorf("download %s: status %d", file.Name, resp.StatusCode)
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return 0, err
	}

	written, err := io.Copy(out, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("download %s: %w", file.Name, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	return written, nil
}

// Close shuts down the browser
func (p *USPSPortal) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.teardown()
}

// ensureSession launches the browser and authenticates on first use
func (p *USPSPortal) ensureSession(ctx context.Context) (context.Context, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.authenticated {
		return p.browserCtx, nil
	}

	if p.browserCtx == nil {
		if err := p.launch(); err != nil {
			return nil, err
		}
	}

	if err := p.login(); err != nil {
		p.teardown()
		return nil, err
	}

	p.authenticated = true
	return p.browserCtx, nil
}

func (p *USPSPortal) launch() error {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", p.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocatorCtx, allocatorCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocatorCtx)

	// Startup probe; a misconfigured Chrome install should fail here, not
	// mid-crawl.
	testCtx, testCancel := context.WithTimeout(browserCtx, 30*time.Second)
	defer testCancel()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		browserCancel()
		allocatorCancel()
		return fmt.Errorf("browser failed startup test: %w", err)
	}

	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocatorCancel = allocatorCancel

	p.logger.Info().Bool("headless", p.cfg.Headless).Msg("Portal browser launched")
	return nil
}

func (p *USPSPortal) login() error {
	runCtx, cancel := context.WithTimeout(p.browserCtx, p.cfg.BrowserTimeout)
	defer cancel()

	err := chromedp.Run(runCtx,
		chromedp.Navigate(p.cfg.PortalURL+"/login"),
		chromedp.WaitVisible(`#username`, chromedp.ByID),
		chromedp.SendKeys(`#username`, p.cfg.Username, chromedp.ByID),
		chromedp.SendKeys(`#password`, p.cfg.Password, chromedp.ByID),
		chromedp.Click(`#login-submit`, chromedp.ByID),
		chromedp.WaitVisible(`#file-listing, #account-home`, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("portal login: %w", err)
	}

	p.logger.Info().Str("portal", p.cfg.PortalURL).Msg("Portal login successful")
	return nil
}

// sessionCookies reads the browser's cookie jar through DevTools
func (p *USPSPortal) sessionCookies(browserCtx context.Context) ([]*network.Cookie, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().WithURLs([]string{p.cfg.PortalURL}).Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("read session cookies: %w", err)
	}
	return cookies, nil
}

// invalidate forces a fresh login on the next request
func (p *USPSPortal) invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authenticated = false
}

func (p *USPSPortal) teardown() {
	if p.browserCancel != nil {
		p.browserCancel()
	}
	if p.allocatorCancel != nil {
		p.allocatorCancel()
	}
	p.browserCtx = nil
	p.browserCancel = nil
	p.allocatorCancel = nil
	p.authenticated = false
}
