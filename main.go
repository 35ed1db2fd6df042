// Package main provides the home energy planner entry point and CLI
// interface.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devskill-org/home-mpc/inverter"
	"github.com/devskill-org/home-mpc/planner"
	"github.com/devskill-org/home-mpc/scheduler"
)

func main() {
	// Command line flags
	var (
		configFile = flag.String("config", "config.json", "Configuration file path")
		help       = flag.Bool("help", false, "Show help message")
		serverOnly = flag.Bool("serverOnly", false, "Run only web server without periodic tasks")
		planOnce   = flag.Bool("plan", false, "Produce one plan, print it and exit")
		learnOnce  = flag.Bool("learn", false, "Run the nightly learning cycle once and exit")
		counters   = flag.Bool("counters", false, "Read and print the inverter lifetime counters")
		info       = flag.Bool("info", false, "Read and print the live inverter status")
	)
	flag.Parse()

	if *help {
		showHelp()
		return
	}

	config, err := scheduler.LoadConfig(*configFile)
	if err != nil {
		fmt.Println("Error loading configuration:", err)
		return
	}

	if *info {
		if err := showPlantStatus(config); err != nil {
			fmt.Println("Error:", err)
		}
		return
	}

	if *counters {
		if err := showPlantCounters(config); err != nil {
			fmt.Println("Error:", err)
		}
		return
	}

	if *planOnce {
		runPlanOnce(config)
		return
	}

	if *learnOnce {
		runLearnOnce(config)
		return
	}

	fmt.Printf("Starting home energy planner with the following configuration:\n")
	fmt.Printf("  Site: %.4f, %.4f (%s)\n", config.Latitude, config.Longitude, config.TimeZone)
	fmt.Printf("  Slot Length: %s\n", config.SlotLength)
	fmt.Printf("  Plan Interval: %s\n", config.PlanInterval)
	fmt.Printf("  PV Peak: %.1f kW\n", config.PVPeakKW)
	fmt.Printf("  Learning Hour: %02d:00\n", config.LearningHour)

	if config.DryRun {
		fmt.Printf("  Mode: DRY-RUN (nothing will be persisted)\n")
	}
	fmt.Println()

	logger := log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags)

	homeScheduler := scheduler.NewHomeScheduler(config, logger)

	// Set up context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := homeScheduler.Start(ctx, *serverOnly); err != nil {
			if err != context.Canceled {
				logger.Printf("Scheduler error: %v", err)
			}
		}
	}()

	logger.Printf("Scheduler started. Press Ctrl+C to stop...")

	<-sigChan
	logger.Printf("Shutdown signal received, stopping scheduler...")

	cancel()
	homeScheduler.Stop()

	logger.Printf("Scheduler stopped successfully")
}

func runPlanOnce(config *scheduler.Config) {
	logger := log.New(os.Stdout, "[PLAN] ", log.LstdFlags)

	homeScheduler := scheduler.NewHomeScheduler(config, logger)
	ctx := context.Background()

	result, err := homeScheduler.PlanOnce(ctx)
	if err != nil {
		logger.Printf("Planning failed: %v", err)
		return
	}

	printPlan(result)
}

func printPlan(result *planner.Result) {
	fmt.Println("\n========================================")
	fmt.Println("PLANNING RESULTS")
	fmt.Println("========================================")
	fmt.Printf("Slots: %d   Expected cost: %.2f SEK   Final SoC: %.1f%%   S-index: %.2f\n\n",
		len(result.Slots), result.ExpectedCostSEK, result.FinalSOCPercent, result.SIndex)

	fmt.Println("┌──────┬───────────────────┬────────┬──────────┬──────────┬──────────┬──────────┬──────────┬──────────┬───────────┐")
	fmt.Println("│ Slot │       Start       │ Class  │ Chrg(kW) │ Dsch(kW) │ Exp(kWh) │ Watr(kW) │ SoC Tgt  │ SoC Proj │ Price SEK │")
	fmt.Println("├──────┼───────────────────┼────────┼──────────┼──────────┼──────────┼──────────┼──────────┼──────────┼───────────┤")

	for _, slot := range result.Slots {
		fmt.Printf("│ %4d │ %17s │ %-6s │  %6.2f  │  %6.2f  │  %6.2f  │  %6.2f  │  %5.1f%%  │  %5.1f%%  │  %7.3f  │\n",
			slot.SlotNumber,
			slot.Start.Format("2006-01-02 15:04"),
			slot.Classification,
			slot.BatteryChargeKW,
			slot.BatteryDischargeKW,
			slot.ExportKWh,
			slot.WaterHeatingKW,
			slot.SOCTargetPercent,
			slot.ProjectedSOCPercent,
			slot.ImportPrice,
		)
	}

	fmt.Println("└──────┴───────────────────┴────────┴──────────┴──────────┴──────────┴──────────┴──────────┴──────────┴───────────┘")

	if len(result.Shortfalls) > 0 {
		fmt.Println("\nDeficit shortfalls:")
		for _, sf := range result.Shortfalls {
			fmt.Printf("  %s..%s  missing %.2f kWh (%s)\n",
				sf.RunStart.Format("15:04"), sf.RunEnd.Format("15:04"), sf.MissingKWh, sf.Reason)
		}
	}
}

func runLearnOnce(config *scheduler.Config) {
	logger := log.New(os.Stdout, "[LEARN] ", log.LstdFlags)

	homeScheduler := scheduler.NewHomeScheduler(config, logger)
	ctx := context.Background()

	date := time.Now().In(config.Location())
	date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())

	run, err := homeScheduler.LearnOnce(ctx, date)
	if err != nil {
		logger.Printf("Learning failed: %v", err)
		return
	}

	fmt.Printf("Learning run %s: status=%s, proposed=%d, applied=%d\n",
		run.Date.Format("2006-01-02"), run.Status, run.ChangesProposed, run.ChangesApplied)
	for _, change := range run.Changes {
		fmt.Printf("  %s: %.4f -> %.4f (%s)\n", change.ParamPath, change.OldValue, change.NewValue, change.Reason)
	}
	for name, value := range run.Metrics {
		fmt.Printf("  metric %s = %.4f\n", name, value)
	}
}

func showPlantStatus(config *scheduler.Config) error {
	if config.PlantModbusAddress == "" {
		return fmt.Errorf("plant_modbus_address is not configured")
	}

	client, err := inverter.NewTCPClient(config.PlantModbusAddress, inverter.PlantAddress)
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.ReadStatus()
	if err != nil {
		return err
	}

	fmt.Println("Plant status:")
	fmt.Printf("  Battery SoC:    %.1f %%\n", status.SOCPercent)
	fmt.Printf("  PV power:       %.3f kW\n", status.PVPowerKW)
	fmt.Printf("  Grid power:     %.3f kW (positive = import)\n", status.GridPowerKW)
	fmt.Printf("  Battery power:  %.3f kW (positive = charging)\n", status.BatteryPowerKW)
	return nil
}

func showPlantCounters(config *scheduler.Config) error {
	if config.PlantModbusAddress == "" {
		return fmt.Errorf("plant_modbus_address is not configured")
	}

	client, err := inverter.NewTCPClient(config.PlantModbusAddress, inverter.PlantAddress)
	if err != nil {
		return err
	}
	defer client.Close()

	counters, err := client.ReadCounters()
	if err != nil {
		return err
	}

	fmt.Println("Lifetime counters:")
	fmt.Printf("  PV generated:        %.2f kWh\n", counters.PVGeneratedKWh)
	fmt.Printf("  Grid imported:       %.2f kWh\n", counters.GridImportedKWh)
	fmt.Printf("  Grid exported:       %.2f kWh\n", counters.GridExportedKWh)
	fmt.Printf("  Battery charged:     %.2f kWh\n", counters.BatteryChargedKWh)
	fmt.Printf("  Battery discharged:  %.2f kWh\n", counters.BatteryDischargedKWh)
	return nil
}

func showHelp() {
	fmt.Println("Home Energy Planner - cost-optimal battery, PV and water heating scheduling")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Plans grid-tied battery charging, discharging, export and water heating")
	fmt.Println("  over a rolling two-day horizon using day-ahead spot prices, weather")
	fmt.Println("  forecasts and a slot-of-day load profile learned from the home's own")
	fmt.Println("  consumption history. A nightly learning cycle calibrates the planner's")
	fmt.Println("  safety margins against observed outcomes.")
	fmt.Println()
	fmt.Println("  Key Features:")
	fmt.Println("  - Day-ahead spot price download (ENTSO-E) with Swedish tariff conversion")
	fmt.Println("  - Deterministic multi-pass planning in 15-minute slots")
	fmt.Println("  - Inverter telemetry and energy counters via Modbus TCP")
	fmt.Println("  - Weather-driven PV forecasting with snow handling")
	fmt.Println("  - Nightly self-calibration from observed slot data")
	fmt.Println("  - Real-time web dashboard")
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  home-mpc [OPTIONS]")
	fmt.Println()
	fmt.Println("OPTIONS:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Run the planner daemon")
	fmt.Println("  home-mpc --config=config.json")
	fmt.Println()
	fmt.Println("  # Produce and print one plan without starting the daemon")
	fmt.Println("  home-mpc -plan")
	fmt.Println()
	fmt.Println("  # Run the nightly learning cycle once")
	fmt.Println("  home-mpc -learn")
	fmt.Println()
	fmt.Println("  # Show live inverter status or lifetime counters")
	fmt.Println("  home-mpc -info")
	fmt.Println("  home-mpc -counters")
	fmt.Println()
	fmt.Println("  # Run only the web server")
	fmt.Println("  home-mpc -serverOnly")
}
