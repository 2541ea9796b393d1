package config_test

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/voxshift/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
pipeline:
  language: fr
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
}

// rewrite replaces the file content and moves its mtime forward by step, so
// polls see a new version without sleeping.
func rewrite(t *testing.T, path, content string, step int) {
	t.Helper()
	writeFile(t, path, content)
	at := time.Now().Add(time.Duration(step) * time.Minute)
	if err := os.Chtimes(path, at, at); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
}

type reload struct {
	cfg  *config.Config
	diff config.ConfigDiff
}

// watch starts from watcherValidYAML and records every reload.
func watch(t *testing.T, opts ...config.WatcherOption) (string, *config.Watcher, *[]reload) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voxshift.yaml")
	writeFile(t, path, watcherValidYAML)
	var got []reload
	w, err := config.NewWatcher(path, func(next *config.Config, d config.ConfigDiff) {
		got = append(got, reload{next, d})
	}, opts...)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return path, w, &got
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()
	_, w, _ := watch(t)

	cfg := w.Current()
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level: got %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
	if cfg.Providers.STT.Name != config.DefaultSTT {
		t.Errorf("defaults not applied: stt=%q", cfg.Providers.STT.Name)
	}
	if _, err := config.NewWatcher("/nonexistent/voxshift.yaml", nil); err == nil {
		t.Error("expected error for a missing file, got nil")
	}
}

func TestWatcher_PollReportsDiff(t *testing.T) {
	t.Parallel()
	path, w, got := watch(t)

	rewrite(t, path, `
server:
  log_level: debug
pipeline:
  language: en
  vocabulary: [Eldrinax]
`, 1)
	if !w.Poll() {
		t.Fatal("Poll did not adopt the edited file")
	}
	if len(*got) != 1 {
		t.Fatalf("got %d reloads, want 1", len(*got))
	}
	r := (*got)[0]
	if !r.diff.LogLevelChanged || r.diff.NewLogLevel != config.LogDebug {
		t.Errorf("got diff %+v, want a log level change to debug", r.diff)
	}
	for _, key := range []string{"pipeline.language", "pipeline.vocabulary"} {
		if !slices.Contains(r.diff.RestartRequired, key) {
			t.Errorf("RestartRequired %v lacks %s", r.diff.RestartRequired, key)
		}
	}
	if r.cfg != w.Current() {
		t.Error("callback config is not the current config")
	}
	if w.Poll() {
		t.Error("second Poll without an edit adopted a config")
	}
}

func TestWatcher_IgnoredEdits(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		content string
	}{
		{"invalid log level", "server:\n  log_level: bananas\n"},
		{"not yaml", "server: [\n"},
		{"same content", watcherValidYAML},
		{"comment only", watcherValidYAML + "# tuned for the Thursday session\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path, w, got := watch(t)
			before := w.Current()

			rewrite(t, path, tt.content, 1)
			w.Poll()
			if len(*got) != 0 {
				t.Errorf("got %d reloads, want none", len(*got))
			}
			if w.Current().Server.LogLevel != config.LogInfo {
				t.Errorf("current log level changed to %q", w.Current().Server.LogLevel)
			}
			if tt.name != "comment only" && w.Current() != before {
				t.Error("current config replaced")
			}
		})
	}
}

func TestWatcher_RecoversAfterBrokenEdit(t *testing.T) {
	t.Parallel()
	path, w, got := watch(t)

	rewrite(t, path, "server:\n  log_level: bananas\n", 1)
	if w.Poll() {
		t.Fatal("broken file adopted")
	}
	rewrite(t, path, "server:\n  log_level: warn\n", 2)
	if !w.Poll() {
		t.Fatal("fixed file not adopted")
	}
	if len(*got) != 1 || (*got)[0].cfg.Server.LogLevel != config.LogWarn {
		t.Errorf("got %d reloads, want one to warn", len(*got))
	}
}

func TestWatcher_AppliesEnv(t *testing.T) {
	t.Parallel()
	_, w, _ := watch(t, config.WithEnv(mapLookup(map[string]string{
		config.EnvVoiceID: "Hades",
	})))
	if got := w.Current().Pipeline.VoiceID; got != "Hades" {
		t.Errorf("voice: got %q, want %q", got, "Hades")
	}
}

func TestWatcher_RunPollsUntilCancelled(t *testing.T) {
	t.Parallel()
	path, w, _ := watch(t, config.WithInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	rewrite(t, path, "server:\n  log_level: debug\n", 1)
	deadline := time.After(2 * time.Second)
	for w.Current().Server.LogLevel != config.LogDebug {
		select {
		case <-deadline:
			t.Fatal("Run did not pick up the edit")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
