// Package scheduler wires the planner, the learning orchestrator and the
// external data sources into a long-running service: it refreshes prices
// and weather, re-plans on a fixed cadence, records per-slot observations
// from the inverter counters and runs the nightly learning cycle.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/devskill-org/home-mpc/inverter"
	"github.com/devskill-org/home-mpc/learning"
	"github.com/devskill-org/home-mpc/meteo"
	"github.com/devskill-org/home-mpc/planner"
	"github.com/devskill-org/home-mpc/spot"
)

// PeriodicTask represents a task that runs periodically with an optional
// initial delay.
type PeriodicTask struct {
	name         string
	initialDelay time.Duration
	interval     time.Duration
	runFunc      func()
}

// run executes the periodic task in a loop, respecting the initial delay
// and context cancellation.
func (pt *PeriodicTask) run(ctx context.Context, stopChan <-chan struct{}, logger *log.Logger) {
	if pt.initialDelay > 0 {
		logger.Printf("[%s] Waiting for initial delay: %v", pt.name, pt.initialDelay)
		select {
		case <-time.After(pt.initialDelay):
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped during initial delay due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped during initial delay due to stop signal", pt.name)
			return
		}
	} else {
		pt.runFunc()
	}

	ticker := time.NewTicker(pt.interval)
	defer ticker.Stop()

	logger.Printf("[%s] Started with interval: %v", pt.name, pt.interval)

	for {
		select {
		case <-ticker.C:
			pt.runFunc()
		case <-ctx.Done():
			logger.Printf("[%s] Stopped due to context cancellation", pt.name)
			return
		case <-stopChan:
			logger.Printf("[%s] Stopped due to stop signal", pt.name)
			return
		}
	}
}

// weatherCache holds the latest weather forecast with expiration.
type weatherCache struct {
	mu        sync.RWMutex
	forecast  *meteo.METJSONForecast
	fetchedAt time.Time
	maxAge    time.Duration
}

// Get returns the cached forecast, or nil when absent or stale.
func (w *weatherCache) Get() *meteo.METJSONForecast {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.forecast == nil || time.Since(w.fetchedAt) > w.maxAge {
		return nil
	}
	return w.forecast
}

// Set replaces the cached forecast.
func (w *weatherCache) Set(forecast *meteo.METJSONForecast) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.forecast = forecast
	w.fetchedAt = time.Now()
}

// HomeScheduler is the service root. It owns the shared state the
// periodic tasks read and write.
type HomeScheduler struct {
	config *Config

	// State
	priceDoc  *spot.Document
	battery   planner.BatteryState
	lastSOC   float64
	plan      *planner.Result
	isRunning bool
	stopChan  chan struct{}
	mu        sync.RWMutex

	weatherCache weatherCache
	tracker      CounterTracker

	store        *Store
	orchestrator *learning.Orchestrator

	webServer *WebServer

	logger *log.Logger
}

// NewHomeScheduler creates a scheduler instance. The web server is
// attached when the config carries a positive port.
func NewHomeScheduler(config *Config, logger *log.Logger) *HomeScheduler {
	if logger == nil {
		logger = log.Default()
	}

	s := &HomeScheduler{
		config:   config,
		stopChan: make(chan struct{}),
		logger:   logger,
		weatherCache: weatherCache{
			maxAge: 2 * config.WeatherRefreshInterval,
		},
		battery: planner.NewBatteryState(config.Planner.Battery, config.Planner.Battery.MinSOCPercent, 0),
	}
	s.webServer = NewWebServer(s, config.WebPort)
	return s
}

// SetConfig replaces the configuration.
func (s *HomeScheduler) SetConfig(config *Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = config
}

// GetConfig returns the current configuration.
func (s *HomeScheduler) GetConfig() *Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.config
}

// getInitialDelay returns the delay until the next boundary of interval,
// measured from the top of the current hour.
func (s *HomeScheduler) getInitialDelay(now time.Time, interval time.Duration) time.Duration {
	top := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	delay := now.Sub(top)
	for delay > 0 {
		delay = delay - interval
	}
	return -delay
}

// learningInitialDelay returns the delay until the next local occurrence
// of hour:00.
func learningInitialDelay(now time.Time, hour int) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// setupPersistence opens the database and the learning orchestrator when
// a connection string is configured. Failures log and degrade to
// memory-only operation.
func (s *HomeScheduler) setupPersistence(ctx context.Context) {
	config := s.GetConfig()
	if config.PostgresConnString == "" || s.store != nil {
		return
	}

	store, err := NewStore(config.PostgresConnString, config.Planner, s.logger)
	if err != nil {
		s.logger.Printf("Persistence disabled: %v", err)
		return
	}
	if err := store.EnsureSchema(ctx); err != nil {
		s.logger.Printf("Persistence disabled, schema setup failed: %v", err)
		store.Close()
		return
	}

	s.store = store
	if baseline, ok, err := store.LoadCounterBaseline(ctx); err != nil {
		s.logger.Printf("Counter baseline load failed: %v", err)
	} else if ok {
		s.tracker.Seed(baseline)
	}

	learningCfg := config.Learning
	learningCfg.DryRun = learningCfg.DryRun || config.DryRun
	s.orchestrator = learning.New(store, store, config.Planner, learningCfg, s.logger)
}

// PlanOnce refreshes prices, weather and the battery state, then produces
// a single plan without starting the periodic tasks.
func (s *HomeScheduler) PlanOnce(ctx context.Context) (*planner.Result, error) {
	s.setupPersistence(ctx)
	s.runPriceRefresh(ctx)
	s.runWeatherRefresh()
	s.refreshBatteryState()

	config := s.GetConfig()
	req, err := s.buildPlanRequest(ctx, time.Now().In(config.Location()))
	if err != nil {
		return nil, err
	}
	planCtx, cancel := context.WithTimeout(ctx, config.PlanBudget)
	defer cancel()
	return planner.Plan(planCtx, req)
}

// LearnOnce triggers a single learning run for the given date.
func (s *HomeScheduler) LearnOnce(ctx context.Context, date time.Time) (*learning.Run, error) {
	s.setupPersistence(ctx)
	if s.orchestrator == nil {
		return nil, fmt.Errorf("learning requires a configured database")
	}
	return s.orchestrator.RunNightly(ctx, date)
}

// Start begins the periodic tasks and blocks until the context is
// cancelled or Stop is called. With serverOnly only the web server runs.
func (s *HomeScheduler) Start(ctx context.Context, serverOnly bool) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.mu.Unlock()

	config := s.GetConfig()

	if config.DryRun {
		s.logger.Printf("DRY-RUN MODE ENABLED: nothing will be persisted")
	}

	s.setupPersistence(ctx)

	if s.webServer != nil {
		if err := s.webServer.Start(); err != nil {
			s.logger.Printf("Failed to start web server: %v", err)
		} else {
			s.logger.Printf("Web server started on port %d", s.webServer.port)
		}
		if serverOnly {
			<-ctx.Done()
			s.stop()
			return nil
		}
	}

	now := time.Now().In(config.Location())
	planInitialDelay := s.getInitialDelay(now, config.PlanInterval) + 2*time.Second
	observationInitialDelay := s.getInitialDelay(now, config.SlotLength) + time.Second
	learningDelay := learningInitialDelay(now, config.LearningHour)

	tasks := []PeriodicTask{
		{
			name:         "PriceRefresh",
			initialDelay: 0, // Run immediately
			interval:     config.PriceRefreshInterval,
			runFunc: func() {
				s.runPriceRefresh(ctx)
			},
		},
		{
			name:         "WeatherRefresh",
			initialDelay: 0,
			interval:     config.WeatherRefreshInterval,
			runFunc: func() {
				s.runWeatherRefresh()
			},
		},
		{
			name:         "Plan",
			initialDelay: planInitialDelay,
			interval:     config.PlanInterval,
			runFunc: func() {
				s.runPlan(ctx)
			},
		},
		{
			name:         "Observation",
			initialDelay: observationInitialDelay,
			interval:     config.SlotLength,
			runFunc: func() {
				s.runObservation(ctx)
			},
		},
		{
			name:         "Learning",
			initialDelay: learningDelay,
			interval:     24 * time.Hour,
			runFunc: func() {
				s.runLearning(ctx)
			},
		},
	}

	var wg sync.WaitGroup
	for _, task := range tasks {
		wg.Add(1)
		task := task // capture loop variable
		go func() {
			defer wg.Done()
			task.run(ctx, s.stopChan, s.logger)
		}()
	}

	wg.Wait()

	s.logger.Printf("All periodic tasks stopped")
	s.stop()
	return nil
}

// Stop gracefully stops the scheduler.
func (s *HomeScheduler) Stop() {
	s.stop()
}

func (s *HomeScheduler) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	s.isRunning = false

	select {
	case <-s.stopChan:
		// Already closed
	default:
		close(s.stopChan)
	}

	if s.webServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.webServer.Stop(ctx); err != nil {
			s.logger.Printf("Error stopping web server: %v", err)
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Printf("Error closing store: %v", err)
		}
	}
}

// IsRunning returns whether the scheduler is currently running.
func (s *HomeScheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// runPriceRefresh downloads the day-ahead document when a token is
// configured.
func (s *HomeScheduler) runPriceRefresh(ctx context.Context) {
	config := s.GetConfig()
	if config.SecurityToken == "" {
		s.logger.Printf("Price refresh skipped: no security token configured")
		return
	}

	client := spot.NewClient(config.UserAgent)
	doc, err := client.DownloadDayAhead(ctx, config.SecurityToken, config.URLFormat, config.Location())
	if err != nil {
		s.logger.Printf("Price refresh failed: %v", err)
		return
	}

	s.mu.Lock()
	s.priceDoc = doc
	s.mu.Unlock()
	s.logger.Printf("Price document refreshed: %d time series", len(doc.TimeSeries))
}

// runWeatherRefresh fetches a fresh weather forecast.
func (s *HomeScheduler) runWeatherRefresh() {
	config := s.GetConfig()
	client := meteo.NewClient(config.UserAgent)

	forecast, err := client.GetCompact(meteo.QueryParams{
		Location: meteo.Location{
			Latitude:  config.Latitude,
			Longitude: config.Longitude,
		},
	})
	if err != nil {
		s.logger.Printf("Weather refresh failed: %v", err)
		return
	}
	s.weatherCache.Set(forecast)
}

// refreshBatteryState reads the live SoC from the inverter. The average
// cost of the stored energy is carried across reads; only the measured
// SoC moves.
func (s *HomeScheduler) refreshBatteryState() {
	config := s.GetConfig()
	if config.PlantModbusAddress == "" {
		return
	}

	client, err := inverter.NewTCPClient(config.PlantModbusAddress, inverter.PlantAddress)
	if err != nil {
		s.logger.Printf("Inverter connection failed: %v", err)
		return
	}
	defer client.Close()

	status, err := client.ReadStatus()
	if err != nil {
		s.logger.Printf("Inverter status read failed: %v", err)
		return
	}

	s.mu.Lock()
	s.battery = planner.NewBatteryState(config.Planner.Battery, status.SOCPercent, s.battery.AvgCostPerKWh)
	s.mu.Unlock()
}

// runPlan produces a fresh schedule and persists it.
func (s *HomeScheduler) runPlan(ctx context.Context) {
	config := s.GetConfig()
	now := time.Now().In(config.Location())

	s.refreshBatteryState()

	req, err := s.buildPlanRequest(ctx, now)
	if err != nil {
		s.logger.Printf("Planning skipped: %v", err)
		return
	}

	planCtx, cancel := context.WithTimeout(ctx, config.PlanBudget)
	result, err := planner.Plan(planCtx, req)
	cancel()
	if err != nil {
		s.logger.Printf("Planning failed: %v", err)
		return
	}

	s.mu.Lock()
	s.plan = result
	s.mu.Unlock()

	s.logger.Printf("Plan generated: %d slots, expected cost %.2f SEK, final SoC %.1f%%, s-index %.2f",
		len(result.Slots), result.ExpectedCostSEK, result.FinalSOCPercent, result.SIndex)
	for _, shortfall := range result.Shortfalls {
		s.logger.Printf("Deficit shortfall %s..%s: %.2f kWh (%s)",
			shortfall.RunStart.Format("15:04"), shortfall.RunEnd.Format("15:04"),
			shortfall.MissingKWh, shortfall.Reason)
	}

	if s.webServer != nil {
		s.webServer.BroadcastSchedule(result.Slots)
	}

	if s.store == nil || config.DryRun {
		return
	}
	if err := s.store.SavePlan(ctx, result.Slots, result.GeneratedAt); err != nil {
		s.logger.Printf("Warning: failed to persist plan: %v", err)
	}
	for _, slot := range result.Slots {
		if !slot.Start.After(now) {
			continue
		}
		if err := s.store.UpsertForecast(ctx, slot.Start, slot.PVForecastKWh, slot.LoadForecastKWh); err != nil {
			s.logger.Printf("Warning: failed to persist forecast: %v", err)
			break
		}
	}
}

// runObservation records the just-completed slot from the inverter's
// lifetime counters.
func (s *HomeScheduler) runObservation(ctx context.Context) {
	config := s.GetConfig()
	if config.PlantModbusAddress == "" {
		return
	}

	client, err := inverter.NewTCPClient(config.PlantModbusAddress, inverter.PlantAddress)
	if err != nil {
		s.logger.Printf("Observation: inverter connection failed: %v", err)
		return
	}
	defer client.Close()

	counters, err := client.ReadCounters()
	if err != nil {
		s.logger.Printf("Observation: counter read failed: %v", err)
		return
	}
	status, err := client.ReadStatus()
	if err != nil {
		s.logger.Printf("Observation: status read failed: %v", err)
		return
	}

	delta := s.tracker.Delta(*counters)

	now := time.Now().In(config.Location())
	slotStart := now.Truncate(config.SlotLength).Add(-config.SlotLength)

	s.mu.Lock()
	socStart := s.lastSOC
	if socStart == 0 {
		socStart = status.SOCPercent
	}
	s.lastSOC = status.SOCPercent
	s.battery = planner.NewBatteryState(config.Planner.Battery, status.SOCPercent, s.battery.AvgCostPerKWh)
	doc := s.priceDoc
	s.mu.Unlock()

	obs := Observation{
		SlotStart:       slotStart,
		PVKWh:           delta.PVKWh,
		LoadKWh:         delta.LoadKWh(),
		ImportKWh:       delta.ImportKWh,
		ExportKWh:       delta.ExportKWh,
		ChargeKWh:       delta.ChargeKWh,
		DischargeKWh:    delta.DischargeKWh,
		SOCStartPercent: socStart,
		SOCEndPercent:   status.SOCPercent,
		QualityFlags:    delta.QualityFlags(),
	}
	if weather := s.weatherCache.Get(); weather != nil {
		if temp := weather.GetWeatherAtTime(slotStart).GetTemperature(); temp != nil {
			obs.TempC = temp
		}
	}
	if doc != nil {
		if raw, found := doc.PriceAt(slotStart); found {
			price := config.Tariff.ImportSEKPerKWh(raw)
			obs.ImportPrice = &price
			feedIn := config.Tariff.ExportSEKPerKWh(raw)
			obs.ExportPrice = &feedIn
		}
	}

	if s.store == nil || config.DryRun {
		return
	}
	if err := s.store.UpsertObservation(ctx, obs); err != nil {
		s.logger.Printf("Observation: persist failed: %v", err)
		return
	}
	if err := s.store.SaveCounterBaseline(ctx, *counters); err != nil {
		s.logger.Printf("Observation: baseline persist failed: %v", err)
	}
}

// runLearning triggers the nightly learning run for the current date.
func (s *HomeScheduler) runLearning(ctx context.Context) {
	if s.orchestrator == nil {
		return
	}
	config := s.GetConfig()
	date := planner.LocalMidnight(time.Now().In(config.Location()))

	run, err := s.orchestrator.RunNightly(ctx, date)
	if err != nil {
		s.logger.Printf("Learning run failed: %v", err)
		return
	}
	s.logger.Printf("Learning run %s: status=%s, applied=%d", date.Format("2006-01-02"), run.Status, run.ChangesApplied)
}

// currentSchedule returns the slots of the current plan, or nil.
func (s *HomeScheduler) currentSchedule() []planner.ScheduleSlot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.plan == nil {
		return nil
	}
	slots := make([]planner.ScheduleSlot, len(s.plan.Slots))
	copy(slots, s.plan.Slots)
	return slots
}

// GetSchedule returns a copy of the current schedule for the web server.
func (s *HomeScheduler) GetSchedule() []planner.ScheduleSlot {
	return s.currentSchedule()
}

// SchedulerStatus represents the current status of the scheduler.
type SchedulerStatus struct {
	IsRunning         bool      `json:"is_running"`
	HasPriceData      bool      `json:"has_price_data"`
	HasWeatherData    bool      `json:"has_weather_data"`
	PlanSlots         int       `json:"plan_slots"`
	PlanGeneratedAt   time.Time `json:"plan_generated_at"`
	BatterySOCPercent float64   `json:"battery_soc_percent"`
	ExpectedCostSEK   float64   `json:"expected_cost_sek"`
}

// GetStatus returns the current status of the scheduler.
func (s *HomeScheduler) GetStatus() SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := SchedulerStatus{
		IsRunning:         s.isRunning,
		HasPriceData:      s.priceDoc != nil,
		HasWeatherData:    s.weatherCache.Get() != nil,
		BatterySOCPercent: s.battery.SOCPercent,
	}
	if s.plan != nil {
		status.PlanSlots = len(s.plan.Slots)
		status.PlanGeneratedAt = s.plan.GeneratedAt
		status.ExpectedCostSEK = s.plan.ExpectedCostSEK
	}
	return status
}
