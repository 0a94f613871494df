// Command scenario plays a scripted pickup/drop sequence against a job's
// monitor, bypassing the live telemetry path. Run it with activate_queries
// set to false in the config to diff the intended writes without touching
// the store.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/banshee-data/carry.report/internal/config"
	"github.com/banshee-data/carry.report/internal/db"
	"github.com/banshee-data/carry.report/internal/monitor"
	"github.com/banshee-data/carry.report/internal/monitoring"
	"github.com/banshee-data/carry.report/internal/scenario"
)

func main() {
	configPath := flag.String("config", "config.json", "Path to the monitor configuration file")
	scenarioPath := flag.String("scenario", "", "Path to the scenario JSON file")
	flag.Parse()

	if *scenarioPath == "" {
		fmt.Fprintln(os.Stderr, "missing required -scenario flag")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*configPath, *scenarioPath); err != nil {
		fmt.Fprintf(os.Stderr, "scenario failed: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, scenarioPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	sc, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}

	database, err := db.NewDB(cfg.GetDatabasePath())
	if err != nil {
		return err
	}
	defer database.Close()

	wlog, err := monitoring.NewWorkerLog(cfg.GetLogDir(), sc.TruckID, sc.JobID)
	if err != nil {
		return err
	}
	defer wlog.Close()

	store := database.NewJobStore(sc.JobID, sc.TruckID, cfg.GetActivateQueries())
	store.SetLogger(wlog.Infof)
	defer store.Close()

	mon, err := monitor.New(cfg, store)
	if err != nil {
		return err
	}
	mon.SetLogger(wlog.Infof)

	player := scenario.NewPlayer(mon, store)
	player.SetLogger(wlog.Infof)
	if err := player.Run(sc); err != nil {
		wlog.Errorf("scenario run failed: %v", err)
		return err
	}
	wlog.Infof("scenario complete: %d events played", len(sc.Events))
	return nil
}
