package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/postpilot/pkg/config"
	"github.com/entrhq/postpilot/pkg/coordinator"
	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/status"
)

type stubPoster struct {
	got []post.Payload
}

func (s *stubPoster) CreatePost(ctx context.Context, p post.Payload) coordinator.CreateResult {
	s.got = append(s.got, p)
	return coordinator.CreateResult{Success: true, PostID: "post_42"}
}

func (s *stubPoster) GetStatus(ctx context.Context, id string) (post.Operation, error) {
	return post.Operation{}, status.ErrNotFound
}

func (s *stubPoster) Ping(ctx context.Context) (coordinator.PingResult, error) {
	return coordinator.PingResult{Alive: true, URL: "https://www.instagram.com/", OnTarget: true}, nil
}

func TestApplyOverrides(t *testing.T) {
	cfg := config.DefaultConfig()
	cli := &CLIConfig{
		Headless:    true,
		UserDataDir: "/tmp/p",
		MetricsAddr: ":9000",
		Verbosity:   "debug",
		set:         map[string]bool{"headless": true},
	}
	require.NoError(t, applyOverrides(cfg, cli))

	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "/tmp/p", cfg.Browser.UserDataDir)
	assert.Equal(t, ":9000", cfg.Metrics.Addr)
	assert.Equal(t, "debug", cfg.Logging.Verbosity)
}

func TestApplyOverrides_UnsetFlagsKeepConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Browser.Headless = true

	require.NoError(t, applyOverrides(cfg, &CLIConfig{set: map[string]bool{}}))
	assert.True(t, cfg.Browser.Headless)

	err := applyOverrides(cfg, &CLIConfig{Verbosity: "loud", set: map[string]bool{}})
	assert.Error(t, err)
}

func TestRunTool(t *testing.T) {
	poster := &stubPoster{}
	in := strings.NewReader(`Sure, posting it now.
<tool><tool_name>publish_post</tool_name><arguments><image>https://img.example.test/a.jpg</image><caption>Fish & chips</caption></arguments></tool>`)

	var out bytes.Buffer
	require.NoError(t, runTool(context.Background(), poster, in, &out, false))

	assert.Contains(t, out.String(), "post_42")
	require.Len(t, poster.got, 1)
	assert.Equal(t, "Fish & chips", poster.got[0].Caption)
}

func TestRunTool_Preview(t *testing.T) {
	poster := &stubPoster{}
	in := strings.NewReader(`<tool><tool_name>publish_post</tool_name><arguments><image>/tmp/a.jpg</image></arguments></tool>`)

	var out bytes.Buffer
	require.NoError(t, runTool(context.Background(), poster, in, &out, true))

	assert.Contains(t, out.String(), "Publish post")
	assert.Contains(t, out.String(), "(no caption)")
	assert.Empty(t, poster.got)
}

func TestRunTool_Errors(t *testing.T) {
	ctx := context.Background()

	err := runTool(ctx, &stubPoster{}, strings.NewReader("no call here"), &bytes.Buffer{}, false)
	assert.ErrorContains(t, err, "no tool call found")

	err = runTool(ctx, &stubPoster{}, strings.NewReader(`<tool><tool_name>delete_account</tool_name><arguments></arguments></tool>`), &bytes.Buffer{}, false)
	assert.ErrorContains(t, err, "unknown tool")
}

func TestRunStatus(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	a, err := newApp(ctx, cfg, false)
	require.NoError(t, err)
	defer func() { assert.NoError(t, a.Close()) }()

	op := post.Operation{
		ID:        "post_1",
		Status:    post.StatusPending,
		Payload:   post.Payload{Image: post.ImageReference{Kind: post.ImageKindFile, Value: "/tmp/a.jpg"}},
		CreatedAt: time.Now(),
	}
	require.NoError(t, a.relay.Begin(ctx, op))

	var out bytes.Buffer
	require.NoError(t, runStatus(ctx, a, &out, "post_1"))
	assert.Contains(t, out.String(), `"id": "post_1"`)
	assert.Contains(t, out.String(), `"status": "pending"`)

	err = runStatus(ctx, a, &out, "post_missing")
	assert.ErrorIs(t, err, status.ErrNotFound)
}

func TestLockedWriter(t *testing.T) {
	var buf bytes.Buffer
	w := &lockedWriter{w: &buf}

	require.NoError(t, w.writeJSON(map[string]string{"a": "b"}))
	require.NoError(t, w.writeJSON(map[string]int{"n": 1}))
	assert.Equal(t, "{\"a\":\"b\"}\n{\"n\":1}\n", buf.String())
}
