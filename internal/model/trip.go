package model

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/carry.report/internal/geo"
)

// Trip is one leg of a carry: movement between two locations. A trip closes
// when the clamps close at a correct origin (a new leg starts loaded) or
// when items are dropped at a correct destination. A trip may start and end
// at the same location only as the final leg of its carry.
type Trip struct {
	CarryNum   int
	Origin     int64
	Dest       int64
	StartTime  time.Time
	FinishTime *time.Time
	TravelTime float64
	Distance   float64
	AvgSpeed   float64
	Speeds     []float64

	latestCoords *geo.Point
}

// NewTrip opens a trip within carry carryNum at the given location.
func NewTrip(carryNum int, start time.Time, startLoc int64) *Trip {
	return &Trip{CarryNum: carryNum, StartTime: start, Origin: startLoc}
}

func (tr *Trip) String() string {
	return fmt.Sprintf("[c%d %d to %d]", tr.CarryNum, tr.Origin, tr.Dest)
}

// Open reports whether the trip has not yet been finalized.
func (tr *Trip) Open() bool { return tr.FinishTime == nil }

// AppendSpeed records one speed sample. The average is computed at
// finalization.
func (tr *Trip) AppendSpeed(speed float64) {
	tr.Speeds = append(tr.Speeds, speed)
}

// AppendCoords advances the polyline distance by the gap between the
// previous and the given coordinates.
func (tr *Trip) AppendCoords(coords geo.Point) {
	if tr.latestCoords != nil {
		tr.Distance += geo.Distance(*tr.latestCoords, coords)
	}
	c := coords
	tr.latestCoords = &c
}

// Finish closes the trip at the given location and time, fixing travel time
// and average speed. Average speed is rounded to two decimals to match the
// persisted column precision.
func (tr *Trip) Finish(loc int64, at time.Time) {
	if len(tr.Speeds) == 0 {
		tr.AvgSpeed = 0
	} else {
		tr.AvgSpeed = math.Round(stat.Mean(tr.Speeds, nil)*100) / 100
	}
	t := at
	tr.FinishTime = &t
	tr.TravelTime = geo.DeltaSeconds(tr.StartTime, at)
	tr.Dest = loc
}

// Carry is one load cycle: from the truck starting to move (or the previous
// carry closing) until at least one correct item is dropped at a correct
// destination. A carry always holds at least one trip; the last trip in the
// slice is the open one.
type Carry struct {
	Num             int
	Origin          int64
	Dest            int64
	StartTime       time.Time
	FinishTime      *time.Time
	UnitCount       int
	Trips           []*Trip
	StowTime        float64
	DockTime        float64
	TotalDistance   float64
	AvgTripDistance float64
	AvgTripTime     float64
}

// NewCarry opens carry num at the given location, with its first trip.
func NewCarry(num int, start time.Time, startLoc int64) *Carry {
	c := &Carry{Num: num, StartTime: start, Origin: startLoc}
	c.AppendTrip(start, startLoc)
	return c
}

func (c *Carry) String() string {
	return fmt.Sprintf("[carry-%d %d to %d]", c.Num, c.Origin, c.Dest)
}

// CurrentTrip returns the open trip. Carries are constructed with a trip and
// every finalization that keeps the carry open appends a successor, so the
// slice is never empty.
func (c *Carry) CurrentTrip() *Trip { return c.Trips[len(c.Trips)-1] }

// AppendTrip opens a new trip within this carry.
func (c *Carry) AppendTrip(start time.Time, startLoc int64) {
	c.Trips = append(c.Trips, NewTrip(c.Num, start, startLoc))
}

// AddStowTime charges the gap between two consecutive samples to time spent
// in stow areas.
func (c *Carry) AddStowTime(prev, curr time.Time) {
	c.StowTime += geo.DeltaSeconds(prev, curr)
}

// AddDockTime charges the gap between two consecutive samples to time spent
// at docks.
func (c *Carry) AddDockTime(prev, curr time.Time) {
	c.DockTime += geo.DeltaSeconds(prev, curr)
}

// Finish closes the carry at the given location with the number of correct
// units dropped, rolling trip distances and travel times up into the carry
// aggregates.
func (c *Carry) Finish(loc int64, unitCount int, at time.Time) {
	c.Dest = loc
	c.UnitCount = unitCount
	t := at
	c.FinishTime = &t

	var travelTime float64
	for _, tr := range c.Trips {
		c.TotalDistance += tr.Distance
		travelTime += tr.TravelTime
	}
	if n := len(c.Trips); n > 0 {
		c.AvgTripDistance = c.TotalDistance / float64(n)
		c.AvgTripTime = travelTime / float64(n)
	}
}
