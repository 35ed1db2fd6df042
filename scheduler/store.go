package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/devskill-org/home-mpc/inverter"
	"github.com/devskill-org/home-mpc/learning"
	"github.com/devskill-org/home-mpc/planner"
	"github.com/lib/pq"
)

// Store wraps the PostgreSQL persistence: slot observations, forecast
// snapshots, the active plan and the learning ledger. It implements
// learning.Store and learning.ParamStore.
type Store struct {
	db     *sql.DB
	base   planner.Config
	logger *log.Logger
}

// NewStore opens the database connection.
func NewStore(connString string, base planner.Config, logger *log.Logger) (*Store, error) {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Store{db: db, base: base, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS slot_observations (
			slot_start    TIMESTAMPTZ PRIMARY KEY,
			pv_kwh        DOUBLE PRECISION NOT NULL,
			load_kwh      DOUBLE PRECISION NOT NULL,
			import_kwh    DOUBLE PRECISION NOT NULL,
			export_kwh    DOUBLE PRECISION NOT NULL,
			charge_kwh    DOUBLE PRECISION NOT NULL,
			discharge_kwh DOUBLE PRECISION NOT NULL,
			soc_start     DOUBLE PRECISION NOT NULL,
			soc_end       DOUBLE PRECISION NOT NULL,
			temp_c        DOUBLE PRECISION,
			import_price  DOUBLE PRECISION,
			export_price  DOUBLE PRECISION,
			quality_flags TEXT[],
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS slot_forecasts (
			slot_start TIMESTAMPTZ PRIMARY KEY,
			pv_kwh     DOUBLE PRECISION NOT NULL,
			load_kwh   DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS plan_slots (
			slot_start            TIMESTAMPTZ PRIMARY KEY,
			slot_number           INTEGER NOT NULL,
			battery_charge_kw     DOUBLE PRECISION NOT NULL,
			battery_discharge_kw  DOUBLE PRECISION NOT NULL,
			export_kwh            DOUBLE PRECISION NOT NULL,
			water_heating_kw      DOUBLE PRECISION NOT NULL,
			soc_target_percent    DOUBLE PRECISION NOT NULL,
			projected_soc_percent DOUBLE PRECISION NOT NULL,
			classification        TEXT NOT NULL,
			import_price          DOUBLE PRECISION NOT NULL,
			pv_forecast_kwh       DOUBLE PRECISION NOT NULL,
			load_forecast_kwh     DOUBLE PRECISION NOT NULL,
			planner_warnings      TEXT[],
			generated_at          TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS learning_runs (
			run_date         DATE PRIMARY KEY,
			started_at       TIMESTAMPTZ,
			ended_at         TIMESTAMPTZ,
			status           TEXT NOT NULL,
			loops_run        TEXT[],
			changes_proposed INTEGER NOT NULL DEFAULT 0,
			changes_applied  INTEGER NOT NULL DEFAULT 0,
			last_error       TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS learning_param_history (
			id         BIGSERIAL PRIMARY KEY,
			run_date   DATE NOT NULL,
			param_path TEXT NOT NULL,
			old_value  DOUBLE PRECISION NOT NULL,
			new_value  DOUBLE PRECISION NOT NULL,
			loop       TEXT NOT NULL,
			reason     TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS learning_params (
			param_path TEXT PRIMARY KEY,
			value      DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS learning_daily_series (
			run_date DATE NOT NULL,
			name     TEXT NOT NULL,
			series   JSONB NOT NULL,
			PRIMARY KEY (run_date, name)
		)`,
		`CREATE TABLE IF NOT EXISTS learning_metrics (
			run_date DATE NOT NULL,
			name     TEXT NOT NULL,
			value    DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (run_date, name)
		)`,
		`CREATE TABLE IF NOT EXISTS sensor_totals (
			counter    TEXT PRIMARY KEY,
			last_value DOUBLE PRECISION NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("creating schema: %w", err)
		}
	}
	return nil
}

// Observation is one completed slot of measured energy flows.
type Observation struct {
	SlotStart       time.Time
	PVKWh           float64
	LoadKWh         float64
	ImportKWh       float64
	ExportKWh       float64
	ChargeKWh       float64
	DischargeKWh    float64
	SOCStartPercent float64
	SOCEndPercent   float64
	TempC           *float64
	ImportPrice     *float64 // SEK/kWh all-in, nil when the price was unknown
	ExportPrice     *float64 // SEK/kWh feed-in, nil when the price was unknown
	QualityFlags    []string
}

// UpsertObservation writes one slot observation, replacing any earlier
// reading for the same slot.
func (s *Store) UpsertObservation(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_observations (
			slot_start, pv_kwh, load_kwh, import_kwh, export_kwh,
			charge_kwh, discharge_kwh, soc_start, soc_end, temp_c,
			import_price, export_price, quality_flags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (slot_start) DO UPDATE SET
			pv_kwh = EXCLUDED.pv_kwh,
			load_kwh = EXCLUDED.load_kwh,
			import_kwh = EXCLUDED.import_kwh,
			export_kwh = EXCLUDED.export_kwh,
			charge_kwh = EXCLUDED.charge_kwh,
			discharge_kwh = EXCLUDED.discharge_kwh,
			soc_start = EXCLUDED.soc_start,
			soc_end = EXCLUDED.soc_end,
			temp_c = EXCLUDED.temp_c,
			import_price = EXCLUDED.import_price,
			export_price = EXCLUDED.export_price,
			quality_flags = EXCLUDED.quality_flags`,
		obs.SlotStart, obs.PVKWh, obs.LoadKWh, obs.ImportKWh, obs.ExportKWh,
		obs.ChargeKWh, obs.DischargeKWh, obs.SOCStartPercent, obs.SOCEndPercent,
		obs.TempC, obs.ImportPrice, obs.ExportPrice, pq.Array(obs.QualityFlags),
	)
	if err != nil {
		return fmt.Errorf("upserting observation: %w", err)
	}
	return nil
}

// UpsertForecast records the PV and load forecast for a future slot. The
// row is overwritten on re-planning until the slot begins; the value in
// force when the slot starts is what the calibrator judges.
func (s *Store) UpsertForecast(ctx context.Context, slotStart time.Time, pvKWh, loadKWh float64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slot_forecasts (slot_start, pv_kwh, load_kwh, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (slot_start) DO UPDATE SET
			pv_kwh = EXCLUDED.pv_kwh,
			load_kwh = EXCLUDED.load_kwh,
			updated_at = now()
		WHERE slot_forecasts.slot_start > now()`,
		slotStart, pvKWh, loadKWh,
	)
	if err != nil {
		return fmt.Errorf("upserting forecast: %w", err)
	}
	return nil
}

// TrainingData returns observed slots in [from, to) joined with the
// forecasts that were in force, oldest first.
func (s *Store) TrainingData(ctx context.Context, from, to time.Time) ([]learning.SlotRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.slot_start, o.pv_kwh, o.load_kwh, o.import_kwh, o.export_kwh,
		       o.charge_kwh, o.discharge_kwh, o.soc_start, o.soc_end,
		       o.temp_c, o.import_price, o.export_price,
		       f.pv_kwh, f.load_kwh
		FROM slot_observations o
		LEFT JOIN slot_forecasts f ON f.slot_start = o.slot_start
		WHERE o.slot_start >= $1 AND o.slot_start < $2
		ORDER BY o.slot_start`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying training data: %w", err)
	}
	defer rows.Close()

	var records []learning.SlotRecord
	for rows.Next() {
		var r learning.SlotRecord
		var tempC, importPrice, exportPrice, fcPV, fcLoad sql.NullFloat64
		err := rows.Scan(
			&r.SlotStart, &r.ObservedPVKWh, &r.ObservedLoadKWh,
			&r.ObservedImportKWh, &r.ObservedExportKWh,
			&r.ObservedChargeKWh, &r.ObservedDischargeKWh,
			&r.SOCStartPercent, &r.SOCEndPercent,
			&tempC, &importPrice, &exportPrice, &fcPV, &fcLoad,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning training data: %w", err)
		}
		if tempC.Valid {
			tc := tempC.Float64
			r.TempC = &tc
		}
		if importPrice.Valid {
			r.ImportPrice = importPrice.Float64
			r.PriceKnown = true
		}
		if exportPrice.Valid {
			r.ExportPrice = exportPrice.Float64
		}
		if fcPV.Valid && fcLoad.Valid {
			r.ForecastPVKWh = fcPV.Float64
			r.ForecastLoadKWh = fcLoad.Float64
			r.HasForecast = true
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LearningRunDone reports whether a completed learning run exists for the
// given date. Failed runs do not count; they are retried.
func (s *Store) LearningRunDone(ctx context.Context, date time.Time) (bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx,
		`SELECT status FROM learning_runs WHERE run_date = $1`,
		date.Format("2006-01-02"),
	).Scan(&status)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking learning run: %w", err)
	}
	return status == "completed", nil
}

// Snapshot returns the full tunable parameter set: persisted values where
// present, configuration defaults otherwise.
func (s *Store) Snapshot(ctx context.Context) (map[string]float64, error) {
	params := learning.ExtractParams(s.base)

	rows, err := s.db.QueryContext(ctx, `SELECT param_path, value FROM learning_params`)
	if err != nil {
		return nil, fmt.Errorf("querying parameters: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var path string
		var value float64
		if err := rows.Scan(&path, &value); err != nil {
			return nil, fmt.Errorf("scanning parameter: %w", err)
		}
		if !learning.IsKnownParam(path) {
			s.logger.Printf("Ignoring unknown persisted parameter %s", path)
			continue
		}
		params[path] = value
	}
	return params, rows.Err()
}

// CommitRun persists one learning run atomically: the run row, the
// metrics, the per-change history and the new parameter values all land
// in a single transaction.
func (s *Store) CommitRun(ctx context.Context, run *learning.Run) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning learning commit: %w", err)
	}
	defer tx.Rollback()

	runDate := run.Date.Format("2006-01-02")

	_, err = tx.ExecContext(ctx, `
		INSERT INTO learning_runs (
			run_date, started_at, ended_at, status, loops_run,
			changes_proposed, changes_applied, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (run_date) DO UPDATE SET
			started_at = EXCLUDED.started_at,
			ended_at = EXCLUDED.ended_at,
			status = EXCLUDED.status,
			loops_run = EXCLUDED.loops_run,
			changes_proposed = EXCLUDED.changes_proposed,
			changes_applied = EXCLUDED.changes_applied,
			last_error = EXCLUDED.last_error`,
		runDate, run.StartedAt, run.EndedAt, run.Status, pq.Array(run.LoopsRun),
		run.ChangesProposed, run.ChangesApplied, nullString(run.LastError),
	)
	if err != nil {
		return fmt.Errorf("inserting learning run: %w", err)
	}

	for name, value := range run.Metrics {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO learning_metrics (run_date, name, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (run_date, name) DO UPDATE SET value = EXCLUDED.value`,
			runDate, name, value,
		)
		if err != nil {
			return fmt.Errorf("inserting learning metric %s: %w", name, err)
		}
	}

	for name, series := range run.DailySeries {
		payload, err := json.Marshal(series)
		if err != nil {
			return fmt.Errorf("encoding daily series %s: %w", name, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO learning_daily_series (run_date, name, series)
			VALUES ($1, $2, $3)
			ON CONFLICT (run_date, name) DO UPDATE SET series = EXCLUDED.series`,
			runDate, name, payload,
		)
		if err != nil {
			return fmt.Errorf("inserting daily series %s: %w", name, err)
		}
	}

	for _, c := range run.Changes {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO learning_param_history (run_date, param_path, old_value, new_value, loop, reason)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			runDate, c.ParamPath, c.OldValue, c.NewValue, c.Loop, c.Reason,
		)
		if err != nil {
			return fmt.Errorf("inserting parameter history: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO learning_params (param_path, value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (param_path) DO UPDATE SET
				value = EXCLUDED.value,
				updated_at = now()`,
			c.ParamPath, c.NewValue,
		)
		if err != nil {
			return fmt.Errorf("updating parameter %s: %w", c.ParamPath, err)
		}
	}

	return tx.Commit()
}

// SaveCounterBaseline persists the last seen lifetime counter values so a
// restart resumes differencing where it left off.
func (s *Store) SaveCounterBaseline(ctx context.Context, c inverter.Counters) error {
	values := map[string]float64{
		"pv_generated_kwh":       c.PVGeneratedKWh,
		"grid_imported_kwh":      c.GridImportedKWh,
		"grid_exported_kwh":      c.GridExportedKWh,
		"battery_charged_kwh":    c.BatteryChargedKWh,
		"battery_discharged_kwh": c.BatteryDischargedKWh,
	}
	for counter, value := range values {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sensor_totals (counter, last_value, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (counter) DO UPDATE SET
				last_value = EXCLUDED.last_value,
				updated_at = now()`,
			counter, value,
		)
		if err != nil {
			return fmt.Errorf("saving counter %s: %w", counter, err)
		}
	}
	return nil
}

// LoadCounterBaseline restores the persisted counter values. ok is false
// when no baseline has been saved yet.
func (s *Store) LoadCounterBaseline(ctx context.Context) (inverter.Counters, bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT counter, last_value FROM sensor_totals`)
	if err != nil {
		return inverter.Counters{}, false, fmt.Errorf("loading counter baseline: %w", err)
	}
	defer rows.Close()

	var c inverter.Counters
	found := false
	for rows.Next() {
		var counter string
		var value float64
		if err := rows.Scan(&counter, &value); err != nil {
			return inverter.Counters{}, false, fmt.Errorf("scanning counter: %w", err)
		}
		found = true
		switch counter {
		case "pv_generated_kwh":
			c.PVGeneratedKWh = value
		case "grid_imported_kwh":
			c.GridImportedKWh = value
		case "grid_exported_kwh":
			c.GridExportedKWh = value
		case "battery_charged_kwh":
			c.BatteryChargedKWh = value
		case "battery_discharged_kwh":
			c.BatteryDischargedKWh = value
		}
	}
	return c, found, rows.Err()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
