package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/fetchbridge/internal/config"
	"github.com/xkilldash9x/fetchbridge/internal/engine"
)

// Renderer executes a page in a real browser engine and swaps the
// response body for the resulting DOM.
type Renderer interface {
	Render(ctx context.Context, resp *engine.Response, opts RenderOptions) error
}

// ChromeRenderer drives a headless Chrome through the DevTools
// protocol. Each render gets its own browser process so option sets
// like headless or viewport never bleed between requests.
type ChromeRenderer struct {
	cfg    config.BrowserConfig
	render config.RenderConfig
	logger *zap.Logger
}

func NewChromeRenderer(cfg config.BrowserConfig, render config.RenderConfig, logger *zap.Logger) *ChromeRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChromeRenderer{cfg: cfg, render: render, logger: logger.Named("renderer")}
}

// Render navigates to the response's final URL, waits for the page to
// settle, and replaces the body with the serialized DOM.
func (r *ChromeRenderer) Render(ctx context.Context, resp *engine.Response, opts RenderOptions) error {
	target := resp.URL()
	if target == "" {
		return fmt.Errorf("%w: response has no url to render", ErrInvalidOptions)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.render.Timeout
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	renderCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(renderCtx, r.allocatorOptions(opts)...)
	defer cancelAlloc()

	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	start := time.Now()
	var html string
	err := chromedp.Run(taskCtx, r.tasks(target, opts, &html)...)
	if err != nil {
		if renderCtx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("render of %s timed out after %s: %w", target, timeout, err)
		}
		return fmt.Errorf("rendering %s: %w", target, err)
	}

	r.logger.Debug("Page rendered",
		zap.String("url", target),
		zap.Int("dom_bytes", len(html)),
		zap.Duration("elapsed", time.Since(start)))

	resp.SetRenderedBody([]byte(html))
	return nil
}

func (r *ChromeRenderer) tasks(target string, opts RenderOptions, html *string) chromedp.Tasks {
	tasks := chromedp.Tasks{}

	width, height := r.viewport(opts)
	if width > 0 && height > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(width), int64(height), 1.0, false))
	}

	tasks = append(tasks, chromedp.Navigate(target))

	switch opts.WaitUntil {
	case WaitDOMContentLoaded:
		// Navigate already waits for the load event, which implies
		// DOMContentLoaded fired.
	case WaitNetworkIdle:
		// Approximated with a quiet period; CDP has no direct
		// network-idle barrier.
		tasks = append(tasks, chromedp.Sleep(1500*time.Millisecond))
	default:
		tasks = append(tasks, chromedp.WaitReady("body"))
	}

	if opts.Sleep > 0 {
		tasks = append(tasks, chromedp.Sleep(opts.Sleep))
	}

	tasks = append(tasks, chromedp.OuterHTML("html", html, chromedp.ByQuery))
	return tasks
}

// allocatorOptions builds the Chrome launch flags. Defaults favor
// stability in containers; config args are layered on top and may
// override anything.
func (r *ChromeRenderer) allocatorOptions(opts RenderOptions) []chromedp.ExecAllocatorOption {
	allocOpts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.Flag("enable-automation", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	}

	if opts.Headless {
		allocOpts = append(allocOpts, chromedp.Headless)
	}
	if r.cfg.DisableCache {
		allocOpts = append(allocOpts,
			chromedp.Flag("disable-cache", true),
			chromedp.Flag("disk-cache-size", "0"),
			chromedp.Flag("media-cache-size", "0"),
		)
	}
	if r.cfg.IgnoreTLSErrors {
		allocOpts = append(allocOpts,
			chromedp.Flag("ignore-certificate-errors", true),
			chromedp.Flag("allow-insecure-localhost", true),
		)
	}

	if width, height := r.viewport(opts); width > 0 && height > 0 {
		allocOpts = append(allocOpts, chromedp.WindowSize(width, height))
	}

	// Extra args from config, in --key or --key=value form.
	for _, arg := range r.cfg.Args {
		arg = strings.TrimPrefix(arg, "--")
		if key, value, found := strings.Cut(arg, "="); found {
			allocOpts = append(allocOpts, chromedp.Flag(key, value))
		} else {
			allocOpts = append(allocOpts, chromedp.Flag(arg, true))
		}
	}
	return allocOpts
}

func (r *ChromeRenderer) viewport(opts RenderOptions) (int, int) {
	width, height := opts.Width, opts.Height
	if width <= 0 {
		width = r.cfg.Viewport.Width
	}
	if height <= 0 {
		height = r.cfg.Viewport.Height
	}
	return width, height
}
