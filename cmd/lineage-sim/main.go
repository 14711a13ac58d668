// lineage-sim drives adversarial verification scenarios against a fresh
// engine and reports how the pipeline and trust controller respond.
// Runs are deterministic: the same scenario and seed always produce the
// same decision sequence.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lineaged/internal/config"
	"lineaged/internal/engine"
	"lineaged/internal/export"
	"lineaged/internal/logging"
	"lineaged/internal/metrics"
	"lineaged/internal/sim"
	"lineaged/internal/store"
)

func main() {
	scenario := flag.String("scenario", "", "scenario to run (see -list)")
	seed := flag.Int64("seed", 42, "random seed")
	start := flag.Int64("start", time.Now().Unix(), "simulated clock start (unix seconds)")
	configPath := flag.String("config", "", "path to config file")
	out := flag.String("out", "", "write the run record to this file")
	jsonOut := flag.Bool("json", false, "print the full report as JSON")
	list := flag.Bool("list", false, "list scenarios and exit")
	flag.Parse()

	if *list {
		for _, name := range sim.Names() {
			fmt.Println(name)
		}
		return
	}
	if *scenario == "" {
		fmt.Fprintln(os.Stderr, "Usage: lineage-sim -scenario <name> [-seed N] [-out run.json]")
		fmt.Fprintf(os.Stderr, "Scenarios: %v\n", sim.Names())
		os.Exit(2)
	}

	if err := run(*scenario, *seed, *start, *configPath, *out, *jsonOut); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(scenario string, seed, start int64, configPath, out string, jsonOut bool) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		loaded.ApplyEnvOverrides()
		cfg = loaded
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return err
	}
	log := logging.New(logging.Config{Level: level, Format: format, Component: "lineage-sim"})

	engCfg := engine.Config{
		Trust:            cfg.Trust,
		MaxFutureDrift:   cfg.Engine.FutureDrift(),
		MaxBackwardDrift: cfg.Engine.BackwardDrift(),
		Anchors:          cfg.Anchors.Checker(),
		Logger:           log,
	}

	if cfg.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		engCfg.Metrics = metrics.New(reg)
		go func() {
			log.Info("metrics listening", "addr", cfg.Metrics.Listen)
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cfg.Metrics.Listen, mux); err != nil {
				log.Error("metrics server failed", "err", err)
			}
		}()
	}

	if cfg.Storage.Enabled {
		db, err := store.Open(cfg.Storage.Path, func() int64 { return time.Now().UnixNano() })
		if err != nil {
			return err
		}
		defer db.Close()
		engCfg.Sink = db
		log.Info("audit store open", "path", cfg.Storage.Path)
	}

	sc, err := sim.Lookup(scenario)
	if err != nil {
		return err
	}

	runner, err := sim.NewRunner(seed, start, engCfg)
	if err != nil {
		return err
	}
	rep, err := runner.Run(sc)
	if err != nil {
		return err
	}
	rep.Seed = seed

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		printReport(rep)
	}

	if out != "" {
		rec := export.Capture(runner.Engine)
		data, err := rec.Marshal()
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write run record: %w", err)
		}
		log.Info("run record written", "path", out, "run_id", rec.RunID)
	}
	return nil
}

func printReport(rep *sim.Report) {
	accepted := 0
	reasons := make(map[string]int)
	for _, s := range rep.Steps {
		if s.Outcome.Accepted {
			accepted++
		}
		reasons[string(s.Outcome.Reason)]++
	}

	fmt.Printf("Scenario %q (seed %d): %d steps, %d accepted\n",
		rep.Scenario, rep.Seed, len(rep.Steps), accepted)
	fmt.Printf("Missed cheats: %d   False alarms: %d\n", rep.Missed, rep.FalseAlarms)
	names := make([]string, 0, len(reasons))
	for reason := range reasons {
		names = append(names, reason)
	}
	sort.Strings(names)
	fmt.Println("\nDecisions by reason:")
	for _, reason := range names {
		fmt.Printf("  %-16s %d\n", reason, reasons[reason])
	}
	fmt.Println("\nFinal trust:")
	for _, st := range rep.Final {
		fmt.Printf("  %-12s weight=%.3f theta=%.3f\n", st.ModelID, st.State.Weight, st.State.Theta)
	}
}
