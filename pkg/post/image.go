package post

import (
	"fmt"
	"strings"
)

// ImageKind identifies which representation an ImageReference carries.
type ImageKind string

const (
	ImageKindFile    ImageKind = "file"
	ImageKindDataURL ImageKind = "data_url"
	ImageKindHTTPURL ImageKind = "http_url"
)

// ImageReference points at the image to post. Exactly one representation is
// active, named by Kind.
type ImageReference struct {
	Kind  ImageKind `json:"kind" yaml:"kind"`
	Value string    `json:"value" yaml:"value"`
}

// ParseImageReference classifies a raw image string as a data URL, an HTTP(S)
// URL or a local file path.
func ParseImageReference(raw string) (ImageReference, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ImageReference{}, fmt.Errorf("image reference is empty")
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "data:"):
		return ImageReference{Kind: ImageKindDataURL, Value: raw}, nil
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return ImageReference{Kind: ImageKindHTTPURL, Value: raw}, nil
	case strings.Contains(raw, "://"):
		return ImageReference{}, fmt.Errorf("unsupported image scheme in %q", truncate(raw, 40))
	default:
		return ImageReference{Kind: ImageKindFile, Value: raw}, nil
	}
}

// String returns a short description safe for logs; data URLs are elided.
func (r ImageReference) String() string {
	if r.Kind == ImageKindDataURL {
		return fmt.Sprintf("%s(%d bytes)", r.Kind, len(r.Value))
	}
	return fmt.Sprintf("%s(%s)", r.Kind, r.Value)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
