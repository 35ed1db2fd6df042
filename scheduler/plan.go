package scheduler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/devskill-org/home-mpc/planner"
	"github.com/lib/pq"
)

// SavePlan replaces the stored plan from the first new slot onward in a
// single transaction. Slots already in the past keep their rows, so the
// history of what was planned stays intact for later comparison.
func (s *Store) SavePlan(ctx context.Context, slots []planner.ScheduleSlot, generatedAt time.Time) error {
	if len(slots) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning plan save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`DELETE FROM plan_slots WHERE slot_start >= $1`,
		slots[0].Start,
	)
	if err != nil {
		return fmt.Errorf("clearing future plan slots: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO plan_slots (
			slot_start, slot_number, battery_charge_kw, battery_discharge_kw,
			export_kwh, water_heating_kw, soc_target_percent, projected_soc_percent,
			classification, import_price, pv_forecast_kwh, load_forecast_kwh,
			planner_warnings, generated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (slot_start) DO UPDATE SET
			slot_number = EXCLUDED.slot_number,
			battery_charge_kw = EXCLUDED.battery_charge_kw,
			battery_discharge_kw = EXCLUDED.battery_discharge_kw,
			export_kwh = EXCLUDED.export_kwh,
			water_heating_kw = EXCLUDED.water_heating_kw,
			soc_target_percent = EXCLUDED.soc_target_percent,
			projected_soc_percent = EXCLUDED.projected_soc_percent,
			classification = EXCLUDED.classification,
			import_price = EXCLUDED.import_price,
			pv_forecast_kwh = EXCLUDED.pv_forecast_kwh,
			load_forecast_kwh = EXCLUDED.load_forecast_kwh,
			planner_warnings = EXCLUDED.planner_warnings,
			generated_at = EXCLUDED.generated_at`)
	if err != nil {
		return fmt.Errorf("preparing plan insert: %w", err)
	}
	defer stmt.Close()

	for _, slot := range slots {
		_, err = stmt.ExecContext(ctx,
			slot.Start, slot.SlotNumber, slot.BatteryChargeKW, slot.BatteryDischargeKW,
			slot.ExportKWh, slot.WaterHeatingKW, slot.SOCTargetPercent, slot.ProjectedSOCPercent,
			string(slot.Classification), slot.ImportPrice, slot.PVForecastKWh, slot.LoadForecastKWh,
			pq.Array(slot.Warnings), generatedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting plan slot %s: %w", slot.Start.Format(time.RFC3339), err)
		}
	}

	return tx.Commit()
}

// LoadPlan returns the stored plan slots starting at or after from,
// oldest first.
func (s *Store) LoadPlan(ctx context.Context, from time.Time) ([]planner.ScheduleSlot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT slot_start, slot_number, battery_charge_kw, battery_discharge_kw,
		       export_kwh, water_heating_kw, soc_target_percent, projected_soc_percent,
		       classification, import_price, pv_forecast_kwh, load_forecast_kwh,
		       planner_warnings
		FROM plan_slots
		WHERE slot_start >= $1
		ORDER BY slot_start`,
		from,
	)
	if err != nil {
		return nil, fmt.Errorf("querying plan slots: %w", err)
	}
	defer rows.Close()

	var slots []planner.ScheduleSlot
	for rows.Next() {
		var slot planner.ScheduleSlot
		var classification string
		var importPrice sql.NullFloat64
		err := rows.Scan(
			&slot.Start, &slot.SlotNumber, &slot.BatteryChargeKW, &slot.BatteryDischargeKW,
			&slot.ExportKWh, &slot.WaterHeatingKW, &slot.SOCTargetPercent, &slot.ProjectedSOCPercent,
			&classification, &importPrice, &slot.PVForecastKWh, &slot.LoadForecastKWh,
			pq.Array(&slot.Warnings),
		)
		if err != nil {
			return nil, fmt.Errorf("scanning plan slot: %w", err)
		}
		slot.Classification = planner.Classification(classification)
		if importPrice.Valid {
			slot.ImportPrice = importPrice.Float64
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}
