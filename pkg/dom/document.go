package dom

import "context"

// Element is a handle to one node in a Document. Handles may go stale when
// the page changes; methods then return an error.
type Element interface {
	// TagName returns the lower-case tag name.
	TagName(ctx context.Context) (string, error)

	// TextContent returns the concatenated text of the element and its descendants.
	TextContent(ctx context.Context) (string, error)

	// Attribute returns the value of an attribute and whether it is present.
	Attribute(ctx context.Context, name string) (string, bool, error)

	// Closest returns the nearest ancestor-or-self matching selector, or nil.
	Closest(ctx context.Context, selector string) (Element, error)

	// ScrollIntoView centres the element in the viewport.
	ScrollIntoView(ctx context.Context) error

	// Click performs a primary click on the element.
	Click(ctx context.Context) error

	// DispatchClick fires a synthetic bubbling click event at the element.
	DispatchClick(ctx context.Context) error

	// SetValue assigns a form control's value and fires input and change events.
	SetValue(ctx context.Context, value string) error

	// SetTextContent replaces an editable element's text and fires an input
	// event carrying the inserted text.
	SetTextContent(ctx context.Context, text string) error

	// SetFiles assigns the file list of a file input and fires a change event.
	SetFiles(ctx context.Context, files []File) error
}

// File is an in-memory file assigned to a file input.
type File struct {
	Name     string
	MimeType string
	Data     []byte
}

// Document is the page tree an execution context operates on.
type Document interface {
	// QueryAll returns the descendants of root (the whole document when root
	// is nil) matching selector, in document order.
	QueryAll(ctx context.Context, root Element, selector string) ([]Element, error)

	// Observe subscribes to mutations under root. The returned channel
	// receives a value after one or more mutations; stop releases the
	// subscription and must be called exactly once.
	Observe(ctx context.Context, root Element) (events <-chan struct{}, stop func(), err error)

	// CreateFileInput appends a hidden file input accepting accept to the body.
	CreateFileInput(ctx context.Context, accept string) (Element, error)

	// URL returns the address of the current page.
	URL(ctx context.Context) (string, error)
}
