// lineagectl is the control CLI for lineaged run records.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"lineaged/internal/config"
	"lineaged/internal/engine"
	"lineaged/internal/export"
	"lineaged/internal/logging"
	"lineaged/internal/score"
	"lineaged/internal/signer"
)

var (
	configPath = flag.String("config", "", "path to config file")
	jsonOut    = flag.Bool("json", false, "JSON output instead of text")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(2)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "keygen":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: lineagectl keygen <dir> [name]")
			os.Exit(2)
		}
		name := "model"
		if flag.NArg() >= 3 {
			name = flag.Arg(2)
		}
		err = cmdKeygen(flag.Arg(1), name)
	case "replay":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: lineagectl replay <run.json>")
			os.Exit(2)
		}
		err = cmdReplay(flag.Arg(1))
	case "summary":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: lineagectl summary <run.json>")
			os.Exit(2)
		}
		err = cmdSummary(flag.Arg(1))
	case "init-config":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: lineagectl init-config <path>")
			os.Exit(2)
		}
		err = cmdInitConfig(flag.Arg(1))
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `lineagectl - Control utility for lineaged run records

Usage: lineagectl [options] <command> [args]

Commands:
  keygen <dir> [name]   Generate an Ed25519 keypair under <dir>
  replay <run.json>     Re-verify a recorded run and compare outcomes
  summary <run.json>    Print per-identity decisions, scores, and anomalies
  init-config <path>    Write the default configuration file
  help                  Show this help message

Options:
  -config <path>  Config file (anchors mode applies to replay)
  -json           JSON output instead of text`)
}

func loadConfig() (*config.Config, error) {
	if *configPath == "" {
		return config.Default(), nil
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

func newLogger(cfg *config.Config, component string) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:     level,
		Format:    format,
		Component: component,
	}), nil
}

func cmdKeygen(dir, name string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}
	pub, priv, err := signer.GenerateKey()
	if err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	privPath := filepath.Join(dir, name+".key")
	pubPath := filepath.Join(dir, name+".pub")
	if err := signer.SaveKeyPair(priv, privPath, pubPath); err != nil {
		return fmt.Errorf("keygen: %w", err)
	}

	fmt.Printf("Private key: %s\n", privPath)
	fmt.Printf("Public key:  %s (%x)\n", pubPath, pub)
	return nil
}

func loadRecord(path string) (*export.RunRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read run record: %w", err)
	}
	return export.Parse(data)
}

func cmdReplay(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg, "lineagectl")
	if err != nil {
		return err
	}

	rec, err := loadRecord(path)
	if err != nil {
		return err
	}
	res, err := export.Replay(rec, export.ReplayConfig{
		Anchors: cfg.Anchors.Checker(),
	})
	if err != nil {
		return err
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
	} else if res.Match {
		fmt.Printf("Run %s: %d decisions reproduced, final trust matches\n",
			rec.RunID, len(rec.Decisions))
	} else {
		fmt.Printf("Run %s: REPLAY DIVERGED (%d decisions)\n", rec.RunID, len(rec.Decisions))
		for _, d := range res.Divergences {
			fmt.Printf("  seq %d: recorded %s, replayed %s\n", d.Seq, d.Recorded, d.Replayed)
		}
	}

	if !res.Match {
		log.Warn("replay diverged", "run_id", rec.RunID, "divergences", len(res.Divergences))
		os.Exit(1)
	}
	return nil
}

func cmdSummary(path string) error {
	rec, err := loadRecord(path)
	if err != nil {
		return err
	}

	perModel := make(map[string]*modelSummary)
	for _, d := range rec.Decisions {
		m, ok := perModel[d.ModelID]
		if !ok {
			m = &modelSummary{ModelID: d.ModelID, Reasons: make(map[string]int)}
			perModel[d.ModelID] = m
		}
		m.Total++
		if d.Accepted {
			m.Accepted++
		}
		m.Reasons[string(d.Reason)]++
	}

	summaries := make([]*modelSummary, 0, len(perModel))
	for _, m := range perModel {
		decisions := decisionsFor(rec, m.ModelID)
		m.Consistency = score.Consistency(decisions)
		m.Anomalies = len(score.Anomalies(decisions))
		for _, st := range rec.FinalTrust {
			if st.ModelID == m.ModelID {
				m.Weight = st.State.Weight
				m.Theta = st.State.Theta
			}
		}
		summaries = append(summaries, m)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].ModelID < summaries[j].ModelID })

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	fmt.Printf("Run %s: %d identities, %d decisions\n", rec.RunID, len(summaries), len(rec.Decisions))
	for _, m := range summaries {
		fmt.Printf("\n%s\n", m.ModelID)
		fmt.Printf("  accepted:    %d/%d (consistency %.3f)\n", m.Accepted, m.Total, m.Consistency)
		fmt.Printf("  trust:       weight=%.3f theta=%.3f\n", m.Weight, m.Theta)
		fmt.Printf("  anomalies:   %d\n", m.Anomalies)
		reasons := make([]string, 0, len(m.Reasons))
		for r := range m.Reasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("  %-16s %d\n", r, m.Reasons[r])
		}
	}
	return nil
}

func decisionsFor(rec *export.RunRecord, modelID string) []engine.Decision {
	var out []engine.Decision
	for _, d := range rec.Decisions {
		if d.ModelID == modelID {
			out = append(out, d)
		}
	}
	return out
}

type modelSummary struct {
	ModelID     string         `json:"model_id"`
	Total       int            `json:"total"`
	Accepted    int            `json:"accepted"`
	Consistency float64        `json:"consistency"`
	Weight      float64        `json:"weight"`
	Theta       float64        `json:"theta"`
	Anomalies   int            `json:"anomalies"`
	Reasons     map[string]int `json:"reasons"`
}

func cmdInitConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("init-config: %s already exists", path)
	}
	cfg := config.Default()
	if err := cfg.Save(path); err != nil {
		return err
	}
	fmt.Printf("Wrote default config to %s\n", path)
	return nil
}
