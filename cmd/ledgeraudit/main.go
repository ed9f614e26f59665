// ledgeraudit checks the stored books for drift between what was persisted
// and what the lifecycle rules derive. It exits with status 2 when anything
// is found so it can gate backups or migrations.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	"github.com/eddiefleurent/wheel_tracker/internal/config"
	"github.com/eddiefleurent/wheel_tracker/internal/lifecycle"
	"github.com/eddiefleurent/wheel_tracker/internal/service"
	"github.com/eddiefleurent/wheel_tracker/internal/storage"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		configPath = flag.String("config", "config.yaml", "Path to configuration file")
		account    = flag.String("account", "", "Audit a single account id (default: all)")
		jsonOutput = flag.Bool("json", false, "Output results as JSON")
		verbose    = flag.Bool("v", false, "Verbose output")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	accountID, err := parseAccount(*account)
	if err != nil {
		log.Fatalf("Invalid -account: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		fmt.Printf("Using config: %s\n", *configPath)
		fmt.Printf("Storage: %s (%s)\n\n", cfg.Storage.Driver, cfg.Storage.Path)
	}

	store, err := storage.NewStorage(cfg.Storage.Driver, cfg.Storage.Path, logger)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	defer func() { _ = store.Close() }()

	ledger := service.NewLedger(store, nil, service.Options{}, logger)
	findings, err := ledger.Audit(context.Background(), accountID)
	if err != nil {
		log.Fatalf("Failed to audit ledger: %v", err)
	}

	if err := report(os.Stdout, findings, *jsonOutput); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}
	if len(findings) > 0 {
		_ = store.Close()
		os.Exit(2)
	}
}

func parseAccount(raw string) (*int64, error) {
	if raw == "" || raw == "all" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("expected a positive account id, got %q", raw)
	}
	return &id, nil
}

func report(w io.Writer, findings []lifecycle.Finding, asJSON bool) error {
	if asJSON {
		if findings == nil {
			findings = []lifecycle.Finding{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(findings)
	}

	if len(findings) == 0 {
		_, err := fmt.Fprintln(w, "No obvious issues detected.")
		return err
	}
	if _, err := fmt.Fprintf(w, "POTENTIAL ISSUES FOUND (%d):\n", len(findings)); err != nil {
		return err
	}
	for i, f := range findings {
		if _, err := fmt.Fprintf(w, "  %d. account %d %s %d: %s\n", i+1, f.AccountID, f.Entity, f.ID, f.Problem); err != nil {
			return err
		}
	}
	return nil
}
