package media

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/post"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestLoad_DataURL(t *testing.T) {
	l := NewLoader()

	img, err := l.Load(context.Background(), post.ImageReference{Kind: post.ImageKindDataURL, Value: "data:image/png;base64,AAAA"})
	require.NoError(t, err)

	assert.Equal(t, DefaultName, img.Name)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, []byte{0, 0, 0}, img.Data)

	f := img.File()
	assert.Equal(t, img.Data, f.Data)
	assert.Equal(t, "image/png", f.MimeType)
}

func TestLoad_DataURLMalformed(t *testing.T) {
	l := NewLoader()

	_, err := l.Load(context.Background(), post.ImageReference{Kind: post.ImageKindDataURL, Value: "data:image/png;base64"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidReference))
}

func TestLoad_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/photo":
			w.Header().Set("Content-Type", "image/webp")
			_, _ = w.Write([]byte("RIFFxxxxWEBP"))
		case "/untyped":
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(pngHeader)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader(WithHTTPClient(srv.Client()))
	ctx := context.Background()

	t.Run("content type from header", func(t *testing.T) {
		img, err := l.Load(ctx, post.ImageReference{Kind: post.ImageKindHTTPURL, Value: srv.URL + "/photo"})
		require.NoError(t, err)
		assert.Equal(t, "image/webp", img.MimeType)
		assert.Equal(t, []byte("RIFFxxxxWEBP"), img.Data)
	})

	t.Run("content type sniffed", func(t *testing.T) {
		img, err := l.Load(ctx, post.ImageReference{Kind: post.ImageKindHTTPURL, Value: srv.URL + "/untyped"})
		require.NoError(t, err)
		assert.Equal(t, "image/png", img.MimeType)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := l.Load(ctx, post.ImageReference{Kind: post.ImageKindHTTPURL, Value: srv.URL + "/missing"})
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrFetchFailed))

		var fe *FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, http.StatusNotFound, fe.StatusCode)
	})
}

func TestLoad_HTTPTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewLoader().Load(context.Background(), post.ImageReference{Kind: post.ImageKindHTTPURL, Value: url})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFetchFailed))
}

func TestLoad_HTTPTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(make([]byte, 64))
	}))
	defer srv.Close()

	_, err := NewLoader(WithMaxBytes(16)).Load(context.Background(), post.ImageReference{Kind: post.ImageKindHTTPURL, Value: srv.URL})
	assert.ErrorIs(t, err, ErrFetchFailed)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sunset.png")
	require.NoError(t, os.WriteFile(path, pngHeader, 0o644))

	img, err := NewLoader().Load(context.Background(), post.ImageReference{Kind: post.ImageKindFile, Value: path})
	require.NoError(t, err)
	assert.Equal(t, "sunset.png", img.Name)
	assert.Equal(t, "image/png", img.MimeType)
	assert.Equal(t, pngHeader, img.Data)
}

func TestLoad_FileErrors(t *testing.T) {
	dir := t.TempDir()
	l := NewLoader()
	ctx := context.Background()

	_, err := l.Load(ctx, post.ImageReference{Kind: post.ImageKindFile, Value: filepath.Join(dir, "missing.jpg")})
	assert.ErrorIs(t, err, ErrInvalidReference)

	_, err = l.Load(ctx, post.ImageReference{Kind: post.ImageKindFile, Value: dir})
	assert.ErrorIs(t, err, ErrInvalidReference)
}

func TestLoad_UnknownKind(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), post.ImageReference{Kind: "blob", Value: "x"})
	assert.ErrorIs(t, err, ErrInvalidReference)
}
