package main

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"

	"github.com/banshee-data/carry.report/internal/config"
	"github.com/banshee-data/carry.report/internal/db"
	"github.com/banshee-data/carry.report/internal/monitor"
	"github.com/banshee-data/carry.report/internal/monitoring"
)

// supervisor runs monitor workers. Each worker owns its job store and log
// file for its whole lifetime; a worker that fails is logged and left down —
// the operator restarts it through the admin endpoint. The admin handler
// guarantees at most one worker per truck by deactivating the truck's prior
// job before spawning, which the old worker notices on its next tick.
type supervisor struct {
	ctx  context.Context
	cfg  *config.Config
	db   *db.DB
	mlog *monitoring.WorkerLog
	wg   sync.WaitGroup
}

func newSupervisor(ctx context.Context, cfg *config.Config, database *db.DB, mlog *monitoring.WorkerLog) *supervisor {
	return &supervisor{ctx: ctx, cfg: cfg, db: database, mlog: mlog}
}

// Spawn launches a monitor worker on its own goroutine.
func (s *supervisor) Spawn(jobID, truckID int64) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.mlog.Errorf("worker job %d truck %d panicked: %v\n%s",
					jobID, truckID, r, debug.Stack())
			}
		}()
		if err := s.runWorker(jobID, truckID); err != nil {
			s.mlog.Errorf("worker job %d truck %d exited: %v", jobID, truckID, err)
		}
	}()
}

// Wait blocks until every worker has exited.
func (s *supervisor) Wait() { s.wg.Wait() }

func (s *supervisor) runWorker(jobID, truckID int64) error {
	wlog, err := monitoring.NewWorkerLog(s.cfg.GetLogDir(), truckID, jobID)
	if err != nil {
		return err
	}
	defer wlog.Close()

	store := s.db.NewJobStore(jobID, truckID, s.cfg.GetActivateQueries())
	store.SetLogger(wlog.Infof)
	defer store.Close()

	mon, err := monitor.New(s.cfg, store)
	if err != nil {
		return err
	}
	mon.SetLogger(wlog.Infof)

	wlog.Infof("worker started: run %s", mon.RunID())
	err = mon.Run(s.ctx)
	if errors.Is(err, context.Canceled) {
		wlog.Infof("worker cancelled by shutdown")
		return nil
	}
	return err
}
