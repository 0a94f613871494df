package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"
)

// WorkerLog is a line-oriented, level-prefixed log sink scoped to a single
// monitor worker. Each worker writes its own file so a job's history can be
// read without grepping the daemon log.
type WorkerLog struct {
	*log.Logger
	file io.Closer
}

// NewWorkerLog opens the per-worker sink JM_<ts>_T<truck>_J<job>.log under
// dir, creating dir if needed. An empty dir writes next to the process.
func NewWorkerLog(dir string, truckID, jobID int64) (*WorkerLog, error) {
	name := fmt.Sprintf("JM_%s_T%d_J%d.log",
		time.Now().Format("20060102-150405"), truckID, jobID)
	return newFileLog(dir, name)
}

// NewManagerLog opens the dispatcher-wide sink <ts>.log under dir.
func NewManagerLog(dir string) (*WorkerLog, error) {
	name := fmt.Sprintf("%s.log", time.Now().Format("20060102-150405"))
	return newFileLog(dir, name)
}

func newFileLog(dir, name string) (*WorkerLog, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return &WorkerLog{
		Logger: log.New(f, "", log.LstdFlags|log.Lmicroseconds),
		file:   f,
	}, nil
}

// Infof writes an INFO-prefixed line.
func (w *WorkerLog) Infof(format string, v ...interface{}) {
	w.Printf("INFO "+format, v...)
}

// Errorf writes an ERROR-prefixed line.
func (w *WorkerLog) Errorf(format string, v ...interface{}) {
	w.Printf("ERROR "+format, v...)
}

// Close releases the underlying file. Safe to call once per log.
func (w *WorkerLog) Close() error {
	if w.file == nil {
		return nil
	}
	return w.file.Close()
}
