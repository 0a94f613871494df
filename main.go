// carry.report is the clamp-truck job-manager daemon. It serves the admin
// endpoint that starts jobs and runs one monitor worker per active (job,
// truck) pair, each validating pickups and drops against the job's task
// list in real time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/carry.report/internal/api"
	"github.com/banshee-data/carry.report/internal/config"
	"github.com/banshee-data/carry.report/internal/db"
	"github.com/banshee-data/carry.report/internal/monitoring"
	"github.com/banshee-data/carry.report/internal/version"
)

var (
	configPath    = flag.String("config", "config.json", "Path to the monitor configuration file")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	migrateCmd    = flag.String("migrate", "", "Run a migration command (up|down|version) and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()
	if *showVersion {
		fmt.Printf("carry.report %s (%s, built %s)\n",
			version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if err := run(); err != nil {
		log.Fatalf("carry.report: %v", err)
	}
}

func run() error {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer database.Close()

	if *migrateCmd != "" {
		return runMigration(database, *migrateCmd)
	}

	mlog, err := monitoring.NewManagerLog(cfg.GetLogDir())
	if err != nil {
		return err
	}
	defer mlog.Close()
	monitoring.SetLogger(mlog.Infof)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sup := newSupervisor(ctx, cfg, database, mlog)
	server := api.NewServer(database, sup.Spawn, mlog.Infof)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.GetJobManagerPort()),
		Handler:           api.LoggingMiddleware(server.ServeMux()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		mlog.Infof("job manager listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	mlog.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		mlog.Errorf("http shutdown: %v", err)
	}
	sup.Wait()
	return nil
}

func runMigration(database *db.DB, cmd string) error {
	switch cmd {
	case "up":
		return database.MigrateUp(*migrationsDir)
	case "down":
		return database.MigrateDown(*migrationsDir)
	case "version":
		version, dirty, err := database.MigrateVersion(*migrationsDir)
		if err != nil {
			return err
		}
		fmt.Printf("version=%d dirty=%v\n", version, dirty)
		return nil
	default:
		return fmt.Errorf("unknown migrate command %q (want up, down, or version)", cmd)
	}
}
