package browser

import "time"

// Options configures the browser the manager launches.
type Options struct {
	// Headless runs the browser without a visible window
	Headless bool

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout is the default timeout for Playwright operations
	Timeout time.Duration

	// UserDataDir, when set, launches a persistent context backed by this
	// profile directory so cookies survive between runs
	UserDataDir string

	// SkipInstall skips downloading the driver and browsers at start
	SkipInstall bool
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// TabInfo describes a page handed out by Tabs.
type TabInfo struct {
	Handle   string
	URL      string
	OpenedAt time.Time
	LastUsed time.Time
}

// Default values for the launched browser.
const (
	DefaultTimeout        = 30 * time.Second
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
)
