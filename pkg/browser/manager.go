package browser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/postpilot/pkg/logging"
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("browser")
	if err != nil {
		debugLog.Warnf("Failed to initialize browser logger, using stderr fallback: %v", err)
	}
}

// ErrNotStarted is returned when the browser is used before Start.
var ErrNotStarted = errors.New("browser not started")

// Manager owns the Playwright driver and the single browser context every
// page is opened in.
type Manager struct {
	mu         sync.RWMutex
	opts       Options
	playwright *playwright.Playwright
	browser    playwright.Browser
	context    playwright.BrowserContext
	started    bool
}

// NewManager creates a manager; nothing is launched until Start.
func NewManager(opts Options) *Manager {
	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Manager{opts: opts}
}

// Start installs (unless skipped) and runs Playwright, then launches
// Chromium. Calling Start on a started manager is a no-op.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.started {
		return nil
	}

	// Driver output goes to the log file so it stays out of the terminal UI
	runOpts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   debugLog.Writer(),
		Stderr:   debugLog.Writer(),
	}

	if !m.opts.SkipInstall {
		if err := playwright.Install(runOpts); err != nil {
			return fmt.Errorf("failed to install playwright: %w", err)
		}
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	bctx, browser, err := m.launch(pw)
	if err != nil {
		_ = pw.Stop()
		return err
	}
	bctx.SetDefaultTimeout(float64(m.opts.Timeout.Milliseconds()))

	m.playwright = pw
	m.browser = browser
	m.context = bctx
	m.started = true
	debugLog.Infof("Browser started (headless=%v, profile=%q)", m.opts.Headless, m.opts.UserDataDir)
	return nil
}

func (m *Manager) launch(pw *playwright.Playwright) (playwright.BrowserContext, playwright.Browser, error) {
	viewport := &playwright.Size{
		Width:  m.opts.Viewport.Width,
		Height: m.opts.Viewport.Height,
	}

	if m.opts.UserDataDir != "" {
		dir, err := expandHome(m.opts.UserDataDir)
		if err != nil {
			return nil, nil, err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create profile directory: %w", err)
		}

		bctx, err := pw.Chromium.LaunchPersistentContext(dir, playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(m.opts.Headless),
			Viewport: viewport,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to launch browser with profile %s: %w", dir, err)
		}
		return bctx, nil, nil
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: viewport,
	})
	if err != nil {
		_ = browser.Close()
		return nil, nil, fmt.Errorf("failed to create context: %w", err)
	}
	return bctx, browser, nil
}

// Context returns the browser context pages are opened in.
func (m *Manager) Context() (playwright.BrowserContext, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.started {
		return nil, ErrNotStarted
	}
	return m.context, nil
}

// Pages returns the open pages of the context.
func (m *Manager) Pages() ([]playwright.Page, error) {
	bctx, err := m.Context()
	if err != nil {
		return nil, err
	}
	return bctx.Pages(), nil
}

// NewPage opens a blank page.
func (m *Manager) NewPage() (playwright.Page, error) {
	bctx, err := m.Context()
	if err != nil {
		return nil, err
	}
	page, err := bctx.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

// Started reports whether Start succeeded and Shutdown has not run.
func (m *Manager) Started() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started
}

// Shutdown closes the context and browser and stops Playwright.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.started {
		return nil
	}

	var errs []error
	if err := m.context.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close context: %w", err))
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close browser: %w", err))
		}
	}
	if err := m.playwright.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
	}

	m.context = nil
	m.browser = nil
	m.playwright = nil
	m.started = false
	return errors.Join(errs...)
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
