/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"dossier/internal/config"
	"dossier/internal/core"
	"dossier/internal/llm"
	"dossier/internal/logger"
	"dossier/internal/pipeline"
	"dossier/internal/report"
	"dossier/internal/search"
)

// Exit codes of the research command.
const (
	exitFailure = 1 // user error, unexpected error, or strict-mode gate failure
	exitTimeout = 2 // wall-clock budget expired; partial artifacts written
)

var (
	cfgFile   string
	topic     string
	depth     string
	outputDir string
	maxCost   float64
	strict    bool
	resume    bool
	verbose   bool
)

// rootCmd is the whole CLI: one subcommand-less research run per invocation.
var rootCmd = &cobra.Command{
	Use:   "dossier --topic <string>",
	Short: "Dossier collects evidence for a research topic and writes a quality-gated report.",
	Long: `Dossier researches a natural-language topic: it classifies intent, plans
queries, fans out to search and data providers, normalizes and deduplicates
the evidence, measures corroboration across independent sources, and applies
quality gates.

Each run writes its artifacts under <output-dir>/<topic-slug>_<timestamp>/:
the evidence cards, metrics, triangulation record, and either a citation-bound
final report or an insufficient-evidence report with next steps.

Examples:
  dossier --topic "household effective tax rate OECD 2023"
  dossier --topic "latest travel & tourism trends" --depth rapid
  dossier --topic "EU AI Act obligations" --strict --max-cost 0.50`,
	SilenceUsage: true,
	RunE:         runResearch,
}

// Execute runs the root command and maps its outcome onto the exit-code
// contract. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, pipeline.ErrDeadline) {
			os.Exit(exitTimeout)
		}
		os.Exit(exitFailure)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dossier.yaml)")

	rootCmd.Flags().StringVar(&topic, "topic", "", "research topic (required)")
	rootCmd.Flags().StringVar(&depth, "depth", core.DepthStandard, "research depth: rapid, standard, or deep")
	rootCmd.Flags().StringVar(&outputDir, "output-dir", "outputs", "parent directory for run directories")
	rootCmd.Flags().Float64Var(&maxCost, "max-cost", 0, "estimated spend ceiling in USD (0 = unlimited)")
	rootCmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when quality gates fail")
	rootCmd.Flags().BoolVar(&resume, "resume", false, "reuse the newest run directory for this topic")
	rootCmd.Flags().BoolVar(&verbose, "verbose", false, "debug-level logging")

	_ = rootCmd.MarkFlagRequired("topic")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(exitFailure)
	}
}

func runResearch(cmd *cobra.Command, args []string) error {
	if verbose {
		logger.SetLevel("debug")
	}

	switch depth {
	case core.DepthRapid, core.DepthStandard, core.DepthDeep:
	default:
		return fmt.Errorf("invalid --depth %q: must be rapid, standard, or deep", depth)
	}

	cfg := config.Get()

	// The Gemini key is optional: without it intent classification stays
	// rule-based and triangulation uses the lexical oracle.
	var client *llm.Client
	if c, err := llm.NewClient(""); err != nil {
		logger.Warn("Gemini unavailable, running with deterministic fallbacks", "error", err.Error())
	} else {
		client = c
	}

	health := search.NewHealth(breakerConfig(cfg), cfg.Seed())
	engine := pipeline.New(cfg, client, health)

	req := core.ResearchRequest{
		Topic:       topic,
		Depth:       depth,
		OutputDir:   outputDir,
		MaxCost:     maxCost,
		Strict:      strict,
		Resume:      resume,
		Verbose:     verbose,
		WallTimeout: wallOverride(cfg),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("🔍 Researching: %s\n", topic)
	fmt.Printf("📊 Depth: %s | Output: %s\n\n", depth, outputDir)

	res, err := engine.Execute(ctx, req)
	if err != nil {
		printSummary(res)
		if errors.Is(err, pipeline.ErrDeadline) {
			fmt.Fprintf(os.Stderr, "⏱️  Wall-clock budget expired; partial artifacts are in %s\n", res.Run.RunDir)
			return err
		}
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "🛑 Interrupted; artifacts written so far are preserved")
			return err
		}
		if res.Run.RunDir != "" {
			report.WriteErrorNote(res.Run.RunDir, topic, err)
		}
		return err
	}

	printSummary(res)

	if strict && !res.Run.AllowFinalReport {
		// The insufficient-evidence report is already on disk; strict mode
		// only upgrades the exit code.
		return fmt.Errorf("strict mode: quality gates failed (%s)", res.Run.ReasonFinalReportBlocked)
	}
	return nil
}

// printSummary renders the end-of-run console block.
func printSummary(res pipeline.Result) {
	rc := res.Run
	if rc.RunDir == "" {
		return
	}
	m := rc.Metrics

	fmt.Println()
	fmt.Printf("📈 Run complete: %s\n", rc.RunDir)
	fmt.Printf("📄 Evidence: %d cards across %d domains (intent: %s)\n", m.Cards, m.UniqueDomains, rc.Intent)
	fmt.Printf("🔺 Triangulation: %.2f | Primary share: %.2f | Top domain: %.2f\n",
		m.UnionTriangulation, m.PrimaryShare, m.TopDomainShare)
	if rc.BackfillAttempts > 0 {
		fmt.Printf("🔁 Backfill passes: %d\n", rc.BackfillAttempts)
	}
	if len(rc.Disambiguations) > 0 {
		fmt.Printf("🌍 Place name is ambiguous; candidates: %s\n", strings.Join(rc.Disambiguations, "; "))
	}

	if rc.AllowFinalReport {
		fmt.Printf("%s confidence. Final report: %s\n", rc.Confidence, filepath.Join(rc.RunDir, report.FinalReportFile))
	} else {
		fmt.Printf("%s confidence. Gates not met: %s\n", rc.Confidence, rc.ReasonFinalReportBlocked)
		fmt.Printf("📝 Next steps: %s\n", filepath.Join(rc.RunDir, report.InsufficientReportFile))
	}
	fmt.Printf("💰 %s\n", res.Cost.String())
}

func breakerConfig(cfg *config.Config) search.BreakerConfig {
	return search.BreakerConfig{
		Threshold:      uint32(cfg.Breaker.Threshold),
		Cooldown:       time.Duration(cfg.Breaker.CooldownSec) * time.Second,
		InitialBackoff: time.Duration(cfg.Breaker.InitialBackoffSec) * time.Second,
		MaxBackoff:     time.Duration(cfg.Breaker.MaxBackoffSec) * time.Second,
	}
}

// wallOverride returns the configured WALL_TIMEOUT_SEC deadline; zero lets
// the depth profile decide.
func wallOverride(cfg *config.Config) time.Duration {
	if cfg.Run.WallTimeoutSec > 0 {
		return time.Duration(cfg.Run.WallTimeoutSec) * time.Second
	}
	return 0
}
