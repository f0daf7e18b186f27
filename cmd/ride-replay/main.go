package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/dpup/ride.ersn.net/server/internal/config"
	"github.com/dpup/ride.ersn.net/server/internal/lib/export"
	"github.com/dpup/ride.ersn.net/server/internal/lib/format"
)

func main() {
	var (
		scenarioPath = flag.String("scenario", "", "Scenario TOML file (required)")
		configPath   = flag.String("config", "", "Optional YAML config (RIDE__ env vars also apply)")
		outDir       = flag.String("out", ".", "Directory for exported files")
		formats      = flag.String("formats", "kml,geojson,fit", "Comma separated export formats, or empty for none")
		verbose      = flag.Bool("v", false, "Log engine decisions")
		help         = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help || *scenarioPath == "" {
		fmt.Printf("Ride Replay Tool\n\n")
		fmt.Printf("Replays a scripted ride through the navigation engine and exports the result.\n\n")
		fmt.Printf("Usage: %s -scenario=ride.toml [options]\n\n", os.Args[0])
		fmt.Printf("Options:\n")
		flag.PrintDefaults()
		fmt.Printf("\nExamples:\n")
		fmt.Printf("  %s -scenario=testdata/north-kilometer.toml -out=/tmp\n", os.Args[0])
		fmt.Printf("  RIDE__NAVIGATION__ARRIVAL_DWELL=5s %s -scenario=ride.toml -formats=fit\n", os.Args[0])
		if !*help {
			os.Exit(2)
		}
		return
	}

	cfg, err := config.Load(*configPath, nil)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := zap.NewNop()
	if *verbose {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
		cfg.Navigation.DirectionLogging = true
		if logger, err = cfg.Logging.Build(); err != nil {
			log.Fatalf("Failed to build logger: %v", err)
		}
		defer func() { _ = logger.Sync() }()
	}

	scenario, err := LoadScenario(*scenarioPath)
	if err != nil {
		log.Fatal(err)
	}

	result, err := Replay(context.Background(), scenario, cfg, logger)
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	printSummary(result, format.NewFromString(cfg.Navigation.Locale))

	name := strings.TrimSuffix(filepath.Base(*scenarioPath), filepath.Ext(*scenarioPath))
	for _, f := range strings.Split(*formats, ",") {
		if strings.TrimSpace(f) == "" {
			continue
		}
		path, err := writeExport(result, scenario.Name, f, *outDir, name)
		if err != nil {
			log.Fatalf("Export failed: %v", err)
		}
		fmt.Printf("Wrote %s\n", path)
	}
}

func printSummary(r *Result, f *format.Formatter) {
	s := r.State
	fmt.Printf("Route: %s (%d points, %s)\n", r.Route.ID, len(r.Route.Points), f.Distance(r.Route.Length()))
	fmt.Printf("Maneuvers: %d  Hazards: %d\n", len(r.Route.Maneuvers), len(r.Route.Hazards))
	fmt.Printf("Fixes recorded: %d\n\n", len(r.Track))

	for _, e := range r.Events {
		line := fmt.Sprintf("  %s  %-16s", e.At.Format("15:04:05"), e.Type)
		if e.Maneuver != nil {
			line += " " + e.Maneuver.Text
		}
		if e.Distance > 0 {
			line += " (" + f.Distance(e.Distance) + ")"
		}
		fmt.Println(line)
	}

	fmt.Printf("\nPhase: %s  Arrived: %v  Off route: %v\n", s.Phase, s.HasArrived, s.IsOffRoute)
	fmt.Printf("Traveled: %s in %s (moving %s)\n",
		f.Distance(s.TotalDistanceTraveled), f.Duration(s.TotalTimeElapsed.Seconds()), f.Duration(s.TotalTimeMoving.Seconds()))
	if s.AverageSpeedWithoutStops != nil {
		fmt.Printf("Moving average: %s\n", f.Speed(*s.AverageSpeedWithoutStops))
	}
	if !s.HasArrived {
		fmt.Printf("Remaining: %s, about %s\n", s.DistanceRemainingText, s.TimeRemainingText)
	}
}

func writeExport(r *Result, rideName, formatName, dir, base string) (string, error) {
	f, err := export.ParseFormat(formatName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, base+"."+string(f))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer out.Close()

	ride := export.Ride{
		Name:  rideName,
		Route: r.Route,
		Track: r.Track,
		Stats: export.StatsFromState(r.State),
	}
	if err := export.Write(out, f, ride); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
