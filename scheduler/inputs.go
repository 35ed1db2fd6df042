package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/devskill-org/home-mpc/learning"
	"github.com/devskill-org/home-mpc/planner"
)

// buildPlanRequest assembles one planning request: the aligned input
// grid, the battery state and the S-index signals.
func (s *HomeScheduler) buildPlanRequest(ctx context.Context, now time.Time) (planner.Request, error) {
	config := s.GetConfig()
	loc := config.Location()
	localNow := now.In(loc)

	s.mu.RLock()
	doc := s.priceDoc
	weather := s.weatherCache.Get()
	battery := s.battery
	s.mu.RUnlock()

	if doc == nil {
		return planner.Request{}, fmt.Errorf("no price document available")
	}

	start := planner.LocalMidnight(localNow)
	end := start.AddDate(0, 0, 2)

	prices := config.Tariff.ImportPrices(doc, config.SlotLength)
	exportPrices := config.Tariff.ExportPrices(doc, config.SlotLength)

	var pv, temp planner.Series
	if weather != nil {
		pv = buildPVSeries(weather, start, end, config.SlotLength, config.Latitude, config.Longitude, config.PVPeakKW)
		temp = buildTempSeries(weather, start, end, config.SlotLength)
	}

	records := s.recentRecords(ctx, localNow, config.LoadProfileDays)
	load := buildLoadSeries(loadProfile(records, loc), start, end, config.SlotLength, loc)

	inputs := planner.BuildGrid(localNow, config.SlotLength, prices, exportPrices, pv, load, temp)

	// Overlay learned parameters when persistence is available.
	plannerCfg := config.Planner
	if s.store != nil {
		snapshot, err := s.store.Snapshot(ctx)
		if err != nil {
			s.logger.Printf("Parameter snapshot failed, planning with config defaults: %v", err)
		} else if overlaid, err := learning.ApplyParams(plannerCfg, snapshot); err == nil {
			plannerCfg = overlaid
		}
	}

	pvRatio := recentPVRatio(records)
	req := planner.Request{
		Config:   plannerCfg,
		Inputs:   inputs,
		Battery:  battery,
		Now:      localNow,
		Existing: s.currentSchedule(),
		SIndex: planner.SIndexInputs{
			RecentPVRatio:    &pvRatio,
			MinForecastTempC: minForecastTempC(temp, start, end, config.SlotLength),
		},
	}
	return req, nil
}

// recentRecords fetches the observation history used for the load
// profile and the PV ratio. Returns nil without persistence.
func (s *HomeScheduler) recentRecords(ctx context.Context, now time.Time, days int) []learning.SlotRecord {
	if s.store == nil {
		return nil
	}
	from := planner.LocalMidnight(now).AddDate(0, 0, -days)
	records, err := s.store.TrainingData(ctx, from, now)
	if err != nil {
		s.logger.Printf("Failed to load observation history: %v", err)
		return nil
	}
	return records
}
