package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/wahistory/internal/api"
	"github.com/wesm/wahistory/internal/importer"
	"github.com/wesm/wahistory/internal/media"
	"github.com/wesm/wahistory/internal/scheduler"
	"github.com/wesm/wahistory/internal/source"
	"github.com/wesm/wahistory/internal/store"
	"github.com/wesm/wahistory/internal/vault"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the chat history over HTTP and run scheduled imports",
	Long: `Run the HTTP API in the foreground. Watched directories are imported
on their cron schedules; exports named after a contact are left for
'wahistory import --scan'.

Configure watches in config.toml:
  [[watch]]
  dir = "~/Downloads/whatsapp"   # empty means [data] raw_dir
  schedule = "*/30 * * * *"
  enabled = true

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Server.ValidateSecure(); err != nil {
		return err
	}
	ctx := cmd.Context()

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	session, err := unlockVault(ctx, s)
	if err != nil {
		return err
	}
	if _, ok := session.Key(); !ok {
		logger.Warn("vault locked; encrypted media will be refused", "env", cfg.Vault.PassphraseEnv)
	}

	sched := scheduler.New(watchImport(s, session)).WithLogger(logger)
	count, errs := sched.AddFromConfig(cfg)
	for _, err := range errs {
		logger.Error("failed to schedule watch", "error", err)
	}
	sched.Start()

	files := mediaStore()
	cache := media.NewDecryptCache(files.Fetch, session, cfg.Server.CacheBytes)
	apiServer := api.NewServer(cfg, api.Deps{
		Store:     s,
		Scheduler: sched,
		Media:     files,
		Decrypter: cache,
		Raw:       source.DirFetcher{Root: cfg.Data.RawDir},
		Scan:      scanRaw,
	}, logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	bindAddr := cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	fmt.Printf("wahistory server started\n")
	fmt.Printf("  API server: http://%s\n", net.JoinHostPort(bindAddr, strconv.Itoa(cfg.Server.APIPort)))
	fmt.Printf("  Watched directories: %d\n", count)
	fmt.Printf("  Data directory: %s\n", cfg.Data.DataDir)
	for _, st := range sched.Status() {
		fmt.Printf("  %s: next import at %s\n", st.Dir, st.NextRun.Local().Format("2006-01-02 15:04:05"))
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop.")

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
		fmt.Println("\nShutting down...")
	case runErr = <-serverErr:
		logger.Error("API server error", "error", runErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	cache.Clear()
	session.Clear()

	fmt.Println("Waiting for running imports to complete...")
	select {
	case <-sched.Stop().Done():
		fmt.Println("Shutdown complete.")
	case <-time.After(30 * time.Second):
		fmt.Println("Shutdown timed out after 30 seconds.")
	}
	return runErr
}

// watchImport returns the scheduler's import function: an unattended import
// of every new export in the watched directory.
func watchImport(s *store.Store, session *vault.Session) scheduler.ImportFunc {
	return func(ctx context.Context, dir string) (int, error) {
		res, err := importer.AutoImport(ctx, importer.Deps{
			Extractor: newExtractor(dir, session, nil),
			Phones:    s,
			Committer: s,
			Logger:    logger,
		}, dir)
		if err != nil {
			return 0, err
		}
		for _, p := range res.Pending {
			logger.Info("export needs a phone number", "dir", dir, "file", p)
		}
		return res.Imported, nil
	}
}
