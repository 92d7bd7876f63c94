// Package capture renders selected pages in a headless browser and persists
// full-page screenshots for both viewports. Each page gets fresh browser
// contexts; the returned Capture carries file paths, not image bytes.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"

	"github.com/sitegrader/sitegrader/internal/domain"
	"github.com/sitegrader/sitegrader/internal/urlfilter"
)

// Reference viewports. The two are always captured together.
var (
	desktopViewport = playwright.Size{Width: 1920, Height: 1080}
	mobileViewport  = playwright.Size{Width: 375, Height: 812}
)

// Config tunes the capture engine.
type Config struct {
	Headless      bool
	Concurrency   int
	PageTimeout   time.Duration
	ScreenshotDir string
	UserAgent     string

	// TopTokens bounds the distinct font/color values extracted per viewport.
	TopTokens int
}

// DefaultConfig returns the documented capture defaults: sequential capture,
// 30s page deadline.
func DefaultConfig() Config {
	return Config{
		Headless:      true,
		Concurrency:   1,
		PageTimeout:   30 * time.Second,
		ScreenshotDir: os.TempDir(),
		UserAgent:     "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 SiteGrader/1.0",
		TopTokens:     8,
	}
}

// Engine drives the headless browser.
type Engine struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	config  Config
	logger  *zap.Logger
}

// NewEngine starts playwright and launches the browser.
func NewEngine(config Config, logger *zap.Logger) (*Engine, error) {
	if config.Concurrency < 1 {
		config.Concurrency = 1
	}
	if config.PageTimeout == 0 {
		config.PageTimeout = DefaultConfig().PageTimeout
	}
	if config.TopTokens == 0 {
		config.TopTokens = DefaultConfig().TopTokens
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(config.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &Engine{
		pw:      pw,
		browser: browser,
		config:  config,
		logger:  logger,
	}, nil
}

// Close shuts down the browser and playwright.
func (e *Engine) Close() error {
	if e.browser != nil {
		e.browser.Close()
	}
	if e.pw != nil {
		return e.pw.Stop()
	}
	return nil
}

// CaptureAll renders every URL through a bounded worker pool and returns one
// Capture per URL in input order. A failed page yields a Capture with Error
// set; the call fails only when every page failed.
func (e *Engine) CaptureAll(ctx context.Context, runID string, urls []string) ([]domain.Capture, error) {
	if len(urls) == 0 {
		return nil, domain.ErrAllCapturesFailed(0)
	}

	runDir := filepath.Join(e.config.ScreenshotDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return nil, domain.ErrStorage("mkdir", err)
	}

	captures := make([]domain.Capture, len(urls))
	tasks := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < e.config.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range tasks {
				captures[i] = e.capturePage(ctx, runDir, urls[i])
			}
		}()
	}

dispatch:
	for i := range urls {
		select {
		case <-ctx.Done():
			// Stop dispatching; in-flight pages observe the context and abort.
			break dispatch
		case tasks <- i:
		}
	}
	close(tasks)
	wg.Wait()

	if ctx.Err() != nil {
		return captures, domain.ErrCancelled().WithCause(ctx.Err())
	}

	succeeded := 0
	for i := range captures {
		if captures[i].URL == "" {
			// Never dispatched due to cancellation.
			captures[i] = domain.Capture{URL: urls[i], Error: "not attempted"}
			continue
		}
		if !captures[i].Failed() {
			succeeded++
		}
	}
	if succeeded == 0 {
		return captures, domain.ErrAllCapturesFailed(len(urls))
	}

	return captures, nil
}

// capturePage renders one page at both viewports under the per-page deadline.
// The URL filter runs one last time here; upstream stages may have been fed
// URLs this engine must never open.
func (e *Engine) capturePage(ctx context.Context, runDir, pageURL string) domain.Capture {
	if verdict := urlfilter.Check(pageURL, urlfilter.Options{}); !verdict.Keep {
		return domain.Capture{URL: pageURL, Error: "filtered: " + verdict.Reason}
	}
	pageCtx, cancel := context.WithTimeout(ctx, e.config.PageTimeout*2) // two viewport passes
	defer cancel()

	capture := domain.Capture{
		URL:    pageURL,
		Tokens: make(map[domain.Viewport]domain.DesignTokens),
	}
	slug := PageSlug(pageURL)

	desktop, err := e.captureViewport(pageCtx, pageURL, domain.ViewportDesktop, filepath.Join(runDir, slug+"-desktop.png"))
	if err != nil {
		capture.Error = captureErrorString(pageCtx, err)
		return capture
	}

	capture.FinalURL = desktop.finalURL
	capture.HTTPStatus = desktop.status
	capture.LoadTimeMS = desktop.loadTime.Milliseconds()
	capture.Title = desktop.title
	capture.HTML = desktop.html
	capture.Screenshots.Desktop = desktop.screenshotPath
	capture.Tokens[domain.ViewportDesktop] = desktop.tokens

	mobile, err := e.captureViewport(pageCtx, pageURL, domain.ViewportMobile, filepath.Join(runDir, slug+"-mobile.png"))
	if err != nil {
		capture.Error = captureErrorString(pageCtx, err)
		return capture
	}

	capture.Screenshots.Mobile = mobile.screenshotPath
	capture.Tokens[domain.ViewportMobile] = mobile.tokens

	e.logger.Debug("page captured",
		zap.String("url", pageURL),
		zap.Int("status", capture.HTTPStatus),
		zap.Int64("load_ms", capture.LoadTimeMS),
	)

	return capture
}

type viewportResult struct {
	finalURL       string
	status         int
	loadTime       time.Duration
	title          string
	html           string
	screenshotPath string
	tokens         domain.DesignTokens
}

// captureViewport opens a fresh browser context at one viewport, navigates,
// triggers lazy-loaded content, extracts tokens, and writes the screenshot.
func (e *Engine) captureViewport(ctx context.Context, pageURL string, viewport domain.Viewport, screenshotPath string) (*viewportResult, error) {
	opts := playwright.BrowserNewContextOptions{
		UserAgent: playwright.String(e.config.UserAgent),
	}
	if viewport == domain.ViewportMobile {
		opts.Viewport = &playwright.Size{Width: mobileViewport.Width, Height: mobileViewport.Height}
		opts.IsMobile = playwright.Bool(true)
		opts.HasTouch = playwright.Bool(true)
		opts.DeviceScaleFactor = playwright.Float(2)
	} else {
		opts.Viewport = &playwright.Size{Width: desktopViewport.Width, Height: desktopViewport.Height}
	}

	browserCtx, err := e.browser.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}
	defer browserCtx.Close()

	page, err := browserCtx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("creating page: %w", err)
	}
	defer page.Close()

	// Close the page when the run is cancelled so navigation aborts promptly.
	watchdogDone := make(chan struct{})
	defer close(watchdogDone)
	go func() {
		select {
		case <-ctx.Done():
			page.Close()
		case <-watchdogDone:
		}
	}()

	start := time.Now()
	timeoutMS := float64(e.config.PageTimeout.Milliseconds())

	resp, err := page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(timeoutMS),
	})
	if err != nil {
		// A networkidle timeout on a chatty page is not fatal; retry with the
		// load event before giving up.
		resp, err = page.Goto(pageURL, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateLoad,
			Timeout:   playwright.Float(timeoutMS),
		})
		if err != nil {
			return nil, fmt.Errorf("navigating to %s: %w", pageURL, err)
		}
	}

	result := &viewportResult{finalURL: page.URL()}
	if resp != nil {
		result.status = resp.Status()
	}

	// Scroll through the page to trigger lazy-loaded images, then return to
	// the top for a clean screenshot.
	if _, err := page.Evaluate(lazyLoadScrollScript); err != nil {
		e.logger.Debug("lazy-load scroll failed", zap.String("url", pageURL), zap.Error(err))
	}
	page.WaitForTimeout(500)

	result.loadTime = time.Since(start)

	if title, err := page.Title(); err == nil {
		result.title = title
	}

	html, err := page.Content()
	if err != nil {
		return nil, fmt.Errorf("serializing DOM: %w", err)
	}
	result.html = html

	result.tokens = e.extractTokens(page)

	shot, err := page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypePng,
	})
	if err != nil {
		return nil, fmt.Errorf("taking screenshot: %w", err)
	}

	if err := os.WriteFile(screenshotPath, shot, 0o644); err != nil {
		return nil, fmt.Errorf("persisting screenshot: %w", err)
	}
	result.screenshotPath = screenshotPath

	return result, nil
}

func captureErrorString(ctx context.Context, err error) string {
	if ctx.Err() == context.DeadlineExceeded {
		return "timeout"
	}
	return err.Error()
}
