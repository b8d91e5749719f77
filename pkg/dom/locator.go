package dom

import (
	"fmt"
	"strings"
)

// LocatorKind selects how a Locator is matched.
type LocatorKind string

const (
	// KindCSS matches the first element for a CSS selector.
	KindCSS LocatorKind = "css"
	// KindTextMatch matches the first element for a selector whose text
	// content contains Text, ignoring case.
	KindTextMatch LocatorKind = "text"
)

// Locator is an immutable description of how to find one element.
type Locator struct {
	Kind     LocatorKind
	Selector string
	Text     string
}

// CSS returns a selector locator.
func CSS(selector string) Locator {
	return Locator{Kind: KindCSS, Selector: selector}
}

// TextMatch returns a text-filtered locator. An empty selector matches any element.
func TextMatch(selector, text string) Locator {
	if selector == "" {
		selector = "*"
	}
	return Locator{Kind: KindTextMatch, Selector: selector, Text: text}
}

// String renders the locator in the :has-text() notation used in logs. A
// selector list is grouped with :is() so the text applies to all of it.
func (l Locator) String() string {
	if l.Kind != KindTextMatch {
		return l.Selector
	}
	sel := l.Selector
	if strings.Contains(sel, ",") {
		sel = ":is(" + sel + ")"
	}
	return fmt.Sprintf("%s:has-text(%q)", sel, l.Text)
}
