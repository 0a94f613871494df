// Package scenario plays scripted pickup and drop sequences against a job
// monitor. A scenario names its items instead of sensing them, bypassing the
// clamp-edge detector and the distance gates, which makes validator behavior
// reproducible offline.
package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/banshee-data/carry.report/internal/monitor"
	"github.com/banshee-data/carry.report/internal/monitoring"
)

// Event is one scripted clamp event.
type Event struct {
	Type     string  `json:"type"` // "pickup" or "drop"
	Location int64   `json:"location"`
	Items    []int64 `json:"items"`
}

// Scenario is a scripted run: which job and truck it plays against, where
// the truck starts, and the ordered event list.
type Scenario struct {
	JobID           int64   `json:"job_id"`
	TruckID         int64   `json:"truck_id"`
	InitialLocation int64   `json:"initial_location"`
	Events          []Event `json:"events"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("invalid scenario file format: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	return &sc, nil
}

// Validate checks the scenario's shape before it is played.
func (sc *Scenario) Validate() error {
	if sc.JobID <= 0 {
		return fmt.Errorf("scenario job_id must be positive, got %d", sc.JobID)
	}
	if sc.TruckID <= 0 {
		return fmt.Errorf("scenario truck_id must be positive, got %d", sc.TruckID)
	}
	for i, ev := range sc.Events {
		if ev.Type != "pickup" && ev.Type != "drop" {
			return fmt.Errorf("event %d has unrecognized type %q", i, ev.Type)
		}
	}
	return nil
}

// Player drives a monitor through a scenario's events.
type Player struct {
	mon   *monitor.Monitor
	items monitor.ItemLookup
	logf  func(format string, v ...interface{})
	now   func() time.Time
}

// NewPlayer builds a player for the given monitor. The item lookup resolves
// the scripted item ids; in production it is the monitor's job store.
func NewPlayer(mon *monitor.Monitor, items monitor.ItemLookup) *Player {
	return &Player{
		mon:   mon,
		items: items,
		logf:  monitoring.Logf,
		now:   time.Now,
	}
}

// SetLogger redirects the player's event log.
func (p *Player) SetLogger(logf func(format string, v ...interface{})) {
	if logf != nil {
		p.logf = logf
	}
}

// Run plays the scenario's events in order. Unrecognized event types were
// rejected at load time; an event that fails drop validation stops the run.
func (p *Player) Run(sc *Scenario) error {
	p.mon.OpenCarry(sc.InitialLocation, p.now())
	for i, ev := range sc.Events {
		switch ev.Type {
		case "pickup":
			p.logf("event %d: pickup of %v at %d", i, ev.Items, ev.Location)
			p.mon.SimulatePickup(ev.Location, ev.Items, p.now())
		case "drop":
			p.logf("event %d: drop of %v at %d", i, ev.Items, ev.Location)
			if err := p.mon.SimulateDrop(p.items, ev.Location, ev.Items, p.now()); err != nil {
				return fmt.Errorf("event %d (drop at %d) failed: %w", i, ev.Location, err)
			}
		}
	}
	return nil
}
