// Package media turns an image reference into the bytes attached to the
// upload control.
package media

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vincent-petithory/dataurl"

	"github.com/entrhq/postpilot/pkg/dom"
	"github.com/entrhq/postpilot/pkg/logging"
	"github.com/entrhq/postpilot/pkg/post"
)

const (
	// DefaultName is the file name given to images without one.
	DefaultName = "image.jpg"
	// DefaultMimeType is used when the type cannot be determined.
	DefaultMimeType = "image/jpeg"
	// DefaultMaxBytes caps downloaded and decoded images.
	DefaultMaxBytes = 50 << 20
)

var debugLog *logging.Logger

func init() {
	var err error
	debugLog, err = logging.NewLogger("media")
	if err != nil {
		debugLog.Warnf("Failed to initialize media logger, using stderr fallback: %v", err)
	}
}

// Image is a loaded image ready to be assigned to a file input.
type Image struct {
	Name     string
	MimeType string
	Data     []byte
}

// File converts the image to the form a file input accepts.
func (i Image) File() dom.File {
	return dom.File{Name: i.Name, MimeType: i.MimeType, Data: i.Data}
}

// Loader resolves image references.
type Loader struct {
	client   *http.Client
	maxBytes int64
	guard    *PathGuard
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used for HTTP(S) references.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithMaxBytes caps the size of an image.
func WithMaxBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// WithPathGuard limits file references to the guard's directories.
func WithPathGuard(g *PathGuard) Option {
	return func(l *Loader) { l.guard = g }
}

// NewLoader creates a loader. The default HTTP client times out after 30s.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		client:   &http.Client{Timeout: 30 * time.Second},
		maxBytes: DefaultMaxBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads the image ref points to.
func (l *Loader) Load(ctx context.Context, ref post.ImageReference) (Image, error) {
	switch ref.Kind {
	case post.ImageKindDataURL:
		return l.loadDataURL(ref.Value)
	case post.ImageKindHTTPURL:
		return l.loadHTTP(ctx, ref.Value)
	case post.ImageKindFile:
		return l.loadFile(ref.Value)
	default:
		return Image{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidReference, ref.Kind)
	}
}

func (l *Loader) loadDataURL(raw string) (Image, error) {
	du, err := dataurl.DecodeString(raw)
	if err != nil {
		return Image{}, fmt.Errorf("%w: malformed data URL: %v", ErrInvalidReference, err)
	}
	if int64(len(du.Data)) > l.maxBytes {
		return Image{}, fmt.Errorf("%w: image is %d bytes, limit is %d", ErrInvalidReference, len(du.Data), l.maxBytes)
	}

	mimeType := du.MediaType.ContentType()
	if mimeType == "" || mimeType == "text/plain" {
		mimeType = sniff(du.Data)
	}
	debugLog.Debugf("decoded data URL: %d bytes, %s", len(du.Data), mimeType)
	return Image{Name: DefaultName, MimeType: mimeType, Data: du.Data}, nil
}

func (l *Loader) loadHTTP(ctx context.Context, url string) (Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	resp, err := l.client.Do(req)
	if err != nil {
		return Image{}, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Image{}, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return Image{}, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}
	if int64(len(data)) > l.maxBytes {
		return Image{}, &FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("image exceeds %d bytes", l.maxBytes)}
	}

	mimeType := contentType(resp.Header.Get("Content-Type"))
	if mimeType == "" {
		mimeType = sniff(data)
	}
	debugLog.Debugf("fetched %s: %d bytes, %s", url, len(data), mimeType)
	return Image{Name: DefaultName, MimeType: mimeType, Data: data}, nil
}

func (l *Loader) loadFile(path string) (Image, error) {
	if l.guard != nil {
		resolved, err := l.guard.Resolve(path)
		if err != nil {
			return Image{}, fmt.Errorf("%w: %w", ErrInvalidReference, err)
		}
		path = resolved
	}

	info, err := os.Stat(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}
	if info.IsDir() {
		return Image{}, fmt.Errorf("%w: %s is a directory", ErrInvalidReference, path)
	}
	if info.Size() > l.maxBytes {
		return Image{}, fmt.Errorf("%w: %s is %d bytes, limit is %d", ErrInvalidReference, path, info.Size(), l.maxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if mimeType == "" {
		mimeType = sniff(data)
	}
	return Image{Name: filepath.Base(path), MimeType: mimeType, Data: data}, nil
}

// contentType strips parameters and rejects generic binary types.
func contentType(header string) string {
	if header == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(header)
	if err != nil || mt == "application/octet-stream" {
		return ""
	}
	return mt
}

func sniff(data []byte) string {
	mt := http.DetectContentType(data)
	if strings.HasPrefix(mt, "image/") || strings.HasPrefix(mt, "video/") {
		if i := strings.IndexByte(mt, ';'); i >= 0 {
			mt = mt[:i]
		}
		return mt
	}
	return DefaultMimeType
}
