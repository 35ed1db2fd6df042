package learning

import (
	"context"
	"time"
)

// SlotRecord joins one slot's observation with the forecast that was
// active when the slot was planned. The store assembles it from
// slot_observations and slot_forecasts.
type SlotRecord struct {
	SlotStart time.Time

	ObservedPVKWh        float64
	ObservedLoadKWh      float64
	ObservedImportKWh    float64
	ObservedExportKWh    float64
	ObservedChargeKWh    float64
	ObservedDischargeKWh float64
	SOCStartPercent      float64
	SOCEndPercent        float64

	ForecastPVKWh   float64
	ForecastLoadKWh float64
	HasForecast     bool
	TempC           *float64

	ImportPrice float64
	ExportPrice float64
	PriceKnown  bool
}

// Store is the persistence surface the orchestrator reads training data
// from and records completed runs against.
type Store interface {
	// LearningRunDone reports whether a successful run already covers the
	// date; a second invocation for the same date is a no-op.
	LearningRunDone(ctx context.Context, date time.Time) (bool, error)
	// TrainingData returns joined slot records with slot_start in
	// [from, to), ordered by slot_start.
	TrainingData(ctx context.Context, from, to time.Time) ([]SlotRecord, error)
}

// ParamStore is the configuration surface: snapshot reads and the
// all-or-nothing commit of a run with its parameter changes.
type ParamStore interface {
	Snapshot(ctx context.Context) (map[string]float64, error)
	// CommitRun persists the run row, its param_history rows, its metrics
	// and daily series, and the parameter mutations in one transaction. On
	// error nothing is applied.
	CommitRun(ctx context.Context, run *Run) error
}

// splitDays groups records into local calendar days, preserving order.
func splitDays(records []SlotRecord) [][]SlotRecord {
	var days [][]SlotRecord
	var cur []SlotRecord
	var curDay time.Time
	for _, r := range records {
		y, m, d := r.SlotStart.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, r.SlotStart.Location())
		if len(cur) > 0 && !day.Equal(curDay) {
			days = append(days, cur)
			cur = nil
		}
		curDay = day
		cur = append(cur, r)
	}
	if len(cur) > 0 {
		days = append(days, cur)
	}
	return days
}
