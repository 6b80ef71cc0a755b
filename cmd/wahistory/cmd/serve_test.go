package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/wesm/wahistory/internal/config"
	"github.com/wesm/wahistory/internal/scheduler"
	"github.com/wesm/wahistory/internal/testutil"
	"github.com/wesm/wahistory/internal/vault"
)

// useTestConfig points the package globals at a fresh home directory.
func useTestConfig(t *testing.T) *config.Config {
	t.Helper()
	oldCfg, oldLogger := cfg, logger
	t.Cleanup(func() { cfg, logger = oldCfg, oldLogger })

	home := t.TempDir()
	cfg = config.NewDefaultConfig(home)
	cfg.Data.RawDir = filepath.Join(home, "raw")
	testutil.MustNoErr(t, os.MkdirAll(cfg.Data.RawDir, 0o755), "mkdir raw")
	logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return cfg
}

func TestServeWatchConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
[data]
raw_dir = "inbox"

[server]
api_port = 9090
api_key = "test-key"

[[watch]]
schedule = "*/30 * * * *"
enabled = true

[[watch]]
dir = "/srv/exports"
schedule = "0 3 * * *"
enabled = true

[[watch]]
dir = "/srv/disabled"
schedule = "0 4 * * *"
enabled = false
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	c, err := config.Load(configPath, tmpDir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Server.APIPort != 9090 {
		t.Errorf("APIPort = %d, want 9090", c.Server.APIPort)
	}

	sched := scheduler.New(func(ctx context.Context, dir string) (int, error) { return 0, nil })
	count, errs := sched.AddFromConfig(c)
	if len(errs) != 0 {
		t.Fatalf("AddFromConfig errors: %v", errs)
	}
	if count != 2 {
		t.Errorf("scheduled %d watches, want 2", count)
	}
	if !sched.IsScheduled(c.Data.RawDir) {
		t.Errorf("watch without dir should use raw_dir %s", c.Data.RawDir)
	}
	if !sched.IsScheduled("/srv/exports") {
		t.Error("/srv/exports not scheduled")
	}
	if sched.IsScheduled("/srv/disabled") {
		t.Error("disabled watch was scheduled")
	}
}

func TestWatchImport(t *testing.T) {
	c := useTestConfig(t)
	st := testutil.NewTestStore(t)
	ctx := context.Background()

	testutil.CreateTempZip(t, c.Data.RawDir, "WhatsApp Chat - +15550001.zip", map[string]string{
		"_chat.txt": testutil.NewTranscript().Say("Ann", "hello").Say("Me", "hi back").String(),
	})
	testutil.WriteFile(t, c.Data.RawDir, "WhatsApp Chat - Carol.txt",
		testutil.NewTranscript().Say("Carol", "hey").Bytes())

	run := watchImport(st, &vault.Session{})

	n, err := run(ctx, c.Data.RawDir)
	testutil.MustNoErr(t, err, "first import")
	if n != 1 {
		t.Errorf("imported %d, want 1", n)
	}
	if _, err := st.GetChatByPhone(ctx, "+15550001"); err != nil {
		t.Errorf("GetChatByPhone: %v", err)
	}

	// A second run finds nothing new; the contact-name export stays pending.
	n, err = run(ctx, c.Data.RawDir)
	testutil.MustNoErr(t, err, "second import")
	if n != 0 {
		t.Errorf("second run imported %d, want 0", n)
	}
}
