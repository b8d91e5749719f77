package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/entrhq/postpilot/pkg/browser"
	"github.com/entrhq/postpilot/pkg/config"
	"github.com/entrhq/postpilot/pkg/coordinator"
	"github.com/entrhq/postpilot/pkg/post"
	"github.com/entrhq/postpilot/pkg/protocol"
	"github.com/entrhq/postpilot/pkg/tools"
	"github.com/entrhq/postpilot/pkg/tools/publish"
	"github.com/entrhq/postpilot/pkg/ui/popup"
)

// run executes the mode selected by the flags
func run(ctx context.Context, cli *CLIConfig) error {
	path := cli.ConfigFile
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			return err
		}
	}

	if cli.InitConfig {
		if err := config.Save(path, config.DefaultConfig()); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := applyOverrides(cfg, cli); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Only the status lookup works without a browser
	withBrowser := cli.Status == ""
	a, err := newApp(ctx, cfg, withBrowser)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			a.log.Warnf("Shutdown: %v", cerr)
		}
	}()

	switch {
	case cli.Status != "":
		return runStatus(ctx, a, os.Stdout, cli.Status)
	case cli.Ping:
		return runPing(ctx, a.coord, os.Stdout)
	case cli.Inspect:
		return runInspect(ctx, a, os.Stdout)
	case cli.Tool:
		return runTool(ctx, a.coord, os.Stdin, os.Stdout, cli.Preview)
	case cli.Serve:
		return runServe(ctx, a, os.Stdin, os.Stdout)
	default:
		return runPost(ctx, a, cli)
	}
}

// applyOverrides applies explicitly given flags on top of the file config.
func applyOverrides(cfg *config.Config, cli *CLIConfig) error {
	if cli.set["headless"] {
		cfg.Browser.Headless = cli.Headless
	}
	if cli.UserDataDir != "" {
		cfg.Browser.UserDataDir = cli.UserDataDir
	}
	if cli.MetricsAddr != "" {
		cfg.Metrics.Addr = cli.MetricsAddr
	}
	if cli.Verbosity != "" {
		cfg.Logging.Verbosity = cli.Verbosity
	}
	return cfg.Validate()
}

func runPost(ctx context.Context, a *app, cli *CLIConfig) error {
	if cli.Image == "" {
		return fmt.Errorf("-image is required (see -help)")
	}
	ref, err := post.ParseImageReference(cli.Image)
	if err != nil {
		return err
	}
	payload := post.Payload{Image: ref, Caption: cli.Caption}
	if err := payload.Validate(); err != nil {
		return err
	}

	events, stop := a.bus.Listen(64)
	defer stop()

	var (
		res  coordinator.CreateResult
		wg   sync.WaitGroup
		done = make(chan struct{})
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(done)
		res = a.coord.CreatePost(ctx, payload)
	}()

	if cli.TUI {
		m := popup.New(events)
		if _, err := tea.NewProgram(m, tea.WithContext(ctx)).Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
			a.log.Warnf("Progress view failed: %v", err)
		}
		if _, _, aborted := m.Result(); aborted {
			fmt.Fprintln(os.Stderr, "Stopped watching; waiting for the post to finish...")
		}
	} else {
		watchCtx, cancel := context.WithCancel(ctx)
		go func() {
			<-done
			cancel()
		}()
		popup.Print(watchCtx, os.Stdout, events)
		cancel()
	}

	wg.Wait()
	if !res.Success {
		return fmt.Errorf("post %s failed: %s", res.PostID, res.Error)
	}
	fmt.Printf("Post %s shared successfully.\n", res.PostID)
	return nil
}

func runStatus(ctx context.Context, a *app, w io.Writer, id string) error {
	op, err := a.relay.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("operation %s: %w", id, err)
	}
	return writeJSON(w, op)
}

func runPing(ctx context.Context, coord *coordinator.Coordinator, w io.Writer) error {
	res, err := coord.Ping(ctx)
	if err != nil {
		return err
	}
	if !res.OnTarget {
		fmt.Fprintf(w, "Browser connected, but not on the target site (current: %s)\n", res.URL)
		return nil
	}
	fmt.Fprintf(w, "Connected: %s\n", res.URL)
	return nil
}

func runInspect(ctx context.Context, a *app, w io.Writer) error {
	resp, err := a.coord.Inspect(ctx)
	if err != nil {
		return err
	}
	if err := writeJSON(w, resp); err != nil {
		return err
	}

	handle, _, err := a.tabs.EnsureTargetPageOpen(ctx)
	if err != nil {
		return err
	}
	content, err := a.tabs.Content(ctx, handle)
	if err != nil {
		return err
	}
	snap, err := browser.TakeSnapshot(content, browser.DefaultSnapshotLength)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "\n%s (%d dialogs)\n%s\n", snap.Title, snap.Dialogs, snap.HTML)
	if snap.Truncated {
		fmt.Fprintln(w, "(truncated)")
	}
	return nil
}

func runTool(ctx context.Context, poster publish.Poster, r io.Reader, w io.Writer, preview bool) error {
	input, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read tool call: %w", err)
	}
	call, _, err := tools.ParseToolCall(string(input))
	if err != nil {
		return err
	}

	registry := tools.NewRegistry(publish.Tools(poster)...)
	if preview {
		p, err := registry.Preview(ctx, call)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\n%s\n\n%s\n", p.Title, p.Description, p.Content)
		return nil
	}

	out, _, err := registry.Execute(ctx, call)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

// runServe answers one JSON request per input line and forwards status
// events as postStatus messages, like the extension's message channel.
func runServe(ctx context.Context, a *app, r io.Reader, w io.Writer) error {
	out := &lockedWriter{w: w}

	events, stop := a.bus.Listen(64)
	defer stop()
	go func() {
		for ev := range events {
			_ = out.writeJSON(protocol.NewStatusMessage(ev))
		}
	}()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 70*1024*1024)
	var wg sync.WaitGroup
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		req, err := protocol.DecodeRequest([]byte(line))
		if err != nil {
			_ = out.writeJSON(protocol.ErrorResponse(err))
			continue
		}

		// Posts run concurrently with further requests such as status queries
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = out.writeJSON(a.coord.Handle(ctx, req))
		}()
	}
	wg.Wait()
	return scanner.Err()
}

type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) writeJSON(v any) error {
	data, err := protocol.Encode(v)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = fmt.Fprintf(l.w, "%s\n", data)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
