// Package browser runs the posting workflow in a real Chromium through
// Playwright.
//
// # Architecture
//
// The package is built around three pieces:
//
//  1. Manager: installs and starts Playwright and owns the browser context,
//     optionally persistent so an existing login is reused
//  2. Tabs: implements coordinator.Tabs; it reuses a page whose URL matches
//     the configured patterns or opens the target site in a new one, and
//     attaches a page agent to every page it hands out
//  3. Document: implements dom.Document on Playwright element handles so
//     the workflow can run unchanged against a live page
//
// # Mutation tracking
//
// Document.Observe installs a MutationObserver on the observed root that
// bumps a counter on the page. The counter is polled; a change, or a poll
// failure caused by navigation, wakes the waiter so it re-queries.
//
// # Example Usage
//
//	m := browser.NewManager(browser.Options{UserDataDir: "~/.postpilot/profile"})
//	if err := m.Start(); err != nil {
//	    return err
//	}
//	defer m.Shutdown()
//
//	tabs, err := browser.NewTabs(m, "https://www.instagram.com/", patterns, relay.Emit)
//	coord := coordinator.New(tabs, relay)
package browser
