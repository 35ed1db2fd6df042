package learning

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/devskill-org/home-mpc/planner"
)

// Change is one applied parameter mutation, after bounds.
type Change struct {
	ParamPath string
	OldValue  float64
	NewValue  float64
	Loop      string
	Reason    string
}

// Run summarises one nightly learning run; the store persists it together
// with the parameter mutations in a single transaction.
type Run struct {
	Date            time.Time
	StartedAt       time.Time
	EndedAt         time.Time
	Status          string // "completed", "failed" or "skipped"
	LoopsRun        []string
	ChangesProposed int
	ChangesApplied  int
	Changes         []Change
	Metrics         map[string]float64
	DailySeries     map[string][]float64
	LastError       string
}

// Config tunes the orchestrator itself. These are operator settings, not
// part of the learned parameter set.
type Config struct {
	LookbackDays      int           `json:"lookback_days"`
	MinImprovementSEK float64       `json:"min_improvement_sek_per_day"`
	MinBiasPercent    float64       `json:"min_bias_percent"`
	MinSamples        int           `json:"min_samples"`
	Budget            time.Duration `json:"-"`
	DryRun            bool          `json:"dry_run"`
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{
		LookbackDays:      14,
		MinImprovementSEK: 0.5,
		MinBiasPercent:    2.0,
		MinSamples:        36,
		Budget:            5 * time.Minute,
	}
}

// Orchestrator runs the nightly learning cycle: assemble training data,
// run the loops, bound the proposals, commit atomically.
type Orchestrator struct {
	store  Store
	params ParamStore
	base   planner.Config
	cfg    Config
	loops  []Loop
	logger *log.Logger
}

// New creates an orchestrator over the given stores. base carries the
// non-tunable planner configuration; the tunable subset is overlaid from
// the parameter store snapshot on every run.
func New(store Store, params ParamStore, base planner.Config, cfg Config, logger *log.Logger) *Orchestrator {
	return &Orchestrator{
		store:  store,
		params: params,
		base:   base,
		cfg:    cfg,
		loops:  defaultLoops(),
		logger: logger,
	}
}

// RunNightly executes one learning run for the given date. Running twice
// for the same date is a no-op: the second call returns a skipped run.
func (o *Orchestrator) RunNightly(ctx context.Context, date time.Time) (*Run, error) {
	done, err := o.store.LearningRunDone(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("learning run check: %w", err)
	}
	if done {
		o.logger.Printf("Learning run for %s already completed, skipping", date.Format("2006-01-02"))
		return &Run{Date: date, Status: "skipped"}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.Budget)
	defer cancel()

	run := &Run{
		Date:        date,
		StartedAt:   time.Now(),
		Metrics:     map[string]float64{},
		DailySeries: map[string][]float64{},
	}

	snapshot, err := o.params.Snapshot(ctx)
	if err != nil {
		return o.failRun(run, fmt.Errorf("parameter snapshot: %w", err))
	}
	cfg, err := ApplyParams(o.base, snapshot)
	if err != nil {
		return o.failRun(run, fmt.Errorf("parameter snapshot: %w", err))
	}

	from := date.AddDate(0, 0, -o.cfg.LookbackDays)
	records, err := o.store.TrainingData(ctx, from, date)
	if err != nil {
		return o.failRun(run, fmt.Errorf("training data: %w", err))
	}

	lc := &loopContext{
		records:           records,
		days:              splitDays(records),
		params:            snapshot,
		cfg:               cfg,
		minImprovementSEK: o.cfg.MinImprovementSEK,
		minBiasPercent:    o.cfg.MinBiasPercent,
		minSamples:        o.cfg.MinSamples,
	}

	current := make(map[string]float64, len(snapshot))
	for k, v := range snapshot {
		current[k] = v
	}
	for _, loop := range o.loops {
		if err := ctx.Err(); err != nil {
			return o.failRun(run, fmt.Errorf("loop %s: %w", loop.Name(), err))
		}
		res, err := loop.Run(ctx, lc)
		if err != nil {
			return o.failRun(run, fmt.Errorf("loop %s: %w", loop.Name(), err))
		}
		run.LoopsRun = append(run.LoopsRun, loop.Name())
		for k, v := range res.Metrics {
			run.Metrics[loop.Name()+"."+k] = v
		}
		for k, v := range res.Series {
			run.DailySeries[loop.Name()+"."+k] = v
		}
		if len(res.Proposals) == 0 && res.Reason != "" {
			o.logger.Printf("Loop %s: no proposal (%s)", loop.Name(), res.Reason)
		}

		for _, p := range res.Proposals {
			run.ChangesProposed++
			old := current[p.ParamPath]
			bounded, ok := clampChange(p.ParamPath, old, p.NewValue, cfg)
			if !ok {
				o.logger.Printf("Loop %s proposed non-tunable %s, ignoring", loop.Name(), p.ParamPath)
				continue
			}
			if bounded == old {
				continue
			}
			run.Changes = append(run.Changes, Change{
				ParamPath: p.ParamPath,
				OldValue:  old,
				NewValue:  bounded,
				Loop:      loop.Name(),
				Reason:    p.Reason,
			})
			current[p.ParamPath] = bounded
		}
	}
	run.ChangesApplied = len(run.Changes)

	// The base factor is recorded every night, changed or not, so the
	// daily series never has holes.
	run.Metrics[ParamSIndexBase] = current[ParamSIndexBase]

	run.EndedAt = time.Now()
	run.Status = "completed"

	if o.cfg.DryRun {
		o.logger.Printf("Dry run: %d change(s) not committed", run.ChangesApplied)
		for _, c := range run.Changes {
			o.logger.Printf("Dry run: %s %.4f -> %.4f (%s)", c.ParamPath, c.OldValue, c.NewValue, c.Loop)
		}
		return run, nil
	}

	if err := o.params.CommitRun(ctx, run); err != nil {
		return nil, fmt.Errorf("learning commit: %w", err)
	}
	o.logger.Printf("Learning run for %s: %d proposed, %d applied",
		date.Format("2006-01-02"), run.ChangesProposed, run.ChangesApplied)
	return run, nil
}

// failRun records a failed run row (best effort) and returns the error.
// No parameter mutations are committed on failure.
func (o *Orchestrator) failRun(run *Run, err error) (*Run, error) {
	run.EndedAt = time.Now()
	run.Status = "failed"
	run.Changes = nil
	run.ChangesApplied = 0
	run.LastError = err.Error()

	recordCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if commitErr := o.params.CommitRun(recordCtx, run); commitErr != nil {
		o.logger.Printf("Failed to record failed learning run: %v", commitErr)
	}
	return run, err
}
