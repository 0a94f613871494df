// Package api exposes the job-manager admin endpoint. The dispatcher listens
// on a single port and accepts start-job requests: it resolves the target
// truck, stops the truck's previous monitor by flipping its job inactive,
// activates the new job, and hands the (job, truck) pair to the worker
// spawner.
package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/carry.report/internal/db"
)

const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Spawner launches a monitor worker for a job on a truck. The daemon's
// implementation runs the worker on its own goroutine with top-level
// recovery; tests substitute a recorder.
type Spawner func(jobID, truckID int64)

// Server handles the job-manager HTTP surface.
type Server struct {
	db    *db.DB
	spawn Spawner
	logf  func(format string, v ...interface{})
}

// NewServer builds the admin server. logf receives one line per management
// action, typically wired to the manager log file.
func NewServer(database *db.DB, spawn Spawner, logf func(format string, v ...interface{})) *Server {
	if logf == nil {
		logf = log.Printf
	}
	return &Server{db: database, spawn: spawn, logf: logf}
}

// ServeMux returns the route table.
func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/job_manager/start_job", s.startJobHandler)
	return mux
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, status, and duration.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

type startJobRequest struct {
	JobID int64 `json:"job_id"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload map[string]string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// startJobHandler starts monitoring a job. Preconditions: the job must have
// a truck assigned through its driver, and the truck's currently active job
// must have no open tasks. On success the previous job is deactivated (its
// monitor notices on the next tick and exits) before the new worker spawns.
func (s *Server) startJobHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req startJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.JobID <= 0 {
		s.writeJSONError(w, http.StatusBadRequest, "job_id must be positive")
		return
	}

	truckID, ok, err := s.db.TruckForJob(req.JobID)
	if err != nil {
		s.logf("start_job %d: truck lookup failed: %v", req.JobID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "truck lookup failed")
		return
	}
	if !ok {
		s.writeJSONError(w, http.StatusNotFound,
			fmt.Sprintf("job %d has no truck assignment", req.JobID))
		return
	}

	open, err := s.db.TruckHasOpenTasks(truckID)
	if err != nil {
		s.logf("start_job %d: open-task check failed: %v", req.JobID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "open-task check failed")
		return
	}
	if open {
		s.writeJSONError(w, http.StatusConflict,
			fmt.Sprintf("truck %d still has open tasks on its active job", truckID))
		return
	}

	if err := s.db.DeactivateJobsForTruck(truckID); err != nil {
		s.logf("start_job %d: deactivation failed: %v", req.JobID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to deactivate previous job")
		return
	}
	if err := s.db.ActivateJob(req.JobID); err != nil {
		s.logf("start_job %d: activation failed: %v", req.JobID, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to activate job")
		return
	}

	s.logf("starting job %d on truck %d", req.JobID, truckID)
	if s.spawn != nil {
		s.spawn(req.JobID, truckID)
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"success": fmt.Sprintf("job %d started on truck %d", req.JobID, truckID),
	})
}
