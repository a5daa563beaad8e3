package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/studio-makeup-api/internal/models"
	"github.com/noah-isme/studio-makeup-api/internal/repository"
	"github.com/noah-isme/studio-makeup-api/internal/service"
	"github.com/noah-isme/studio-makeup-api/pkg/config"
	"github.com/noah-isme/studio-makeup-api/pkg/database"
	appErrors "github.com/noah-isme/studio-makeup-api/pkg/errors"
	"github.com/noah-isme/studio-makeup-api/pkg/export"
	"github.com/noah-isme/studio-makeup-api/pkg/logger"
)

func main() {
	var (
		creditID string
		format   string
		outPath  string
		timeout  time.Duration
	)

	flag.StringVar(&creditID, "credit", "", "Check a single credit instead of the whole ledger")
	flag.StringVar(&format, "format", "table", "Output format: table, json, csv or pdf")
	flag.StringVar(&outPath, "out", "", "Write the report to this file instead of stdout")
	flag.DurationVar(&timeout, "timeout", time.Minute, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ledger := service.NewLedgerService(repository.NewCreditRepository(db), nil, logr)

	if creditID != "" {
		err := ledger.CheckCredit(ctx, creditID)
		switch {
		case err == nil:
			fmt.Printf("credit %s: consistent\n", creditID)
			return
		case errors.Is(err, appErrors.ErrLedgerIntegrity):
			fmt.Printf("credit %s: %v\n", creditID, err)
			os.Exit(1)
		default:
			logr.Fatal("credit check failed", zap.String("credit_id", creditID), zap.Error(err))
		}
	}

	report, err := ledger.Reconcile(ctx)
	if err != nil {
		logr.Fatal("ledger reconciliation failed", zap.Error(err))
	}

	out := io.Writer(os.Stdout)
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			logr.Fatal("failed to create output file", zap.String("path", outPath), zap.Error(err))
		}
		defer f.Close()
		out = f
	}
	if err := writeReport(out, format, report); err != nil {
		logr.Fatal("failed to write report", zap.String("format", format), zap.Error(err))
	}

	if len(report) > 0 {
		fmt.Fprintf(os.Stderr, "%d ledger discrepancies found\n", len(report))
		os.Exit(1)
	}
}

func writeReport(w io.Writer, format string, report []models.LedgerDiscrepancy) error {
	switch format {
	case "table", "":
		printReport(w, report)
		return nil
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	default:
		renderer, err := export.ForFormat(format)
		if err != nil {
			return err
		}
		body, err := renderer.Render(service.DiscrepancyReport(report, time.Now()))
		if err != nil {
			return err
		}
		_, err = w.Write(body)
		return err
	}
}

func printReport(w io.Writer, report []models.LedgerDiscrepancy) {
	if len(report) == 0 {
		fmt.Fprintln(w, "ledger consistent: no discrepancies")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CREDIT\tSTUDENT\tKIND\tGRANTED\tCONSUMED\tUSAGES")
	for _, row := range report {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\n", row.CreditID, row.StudentID, row.Kind, row.QuantityGranted, row.QuantityConsumed, row.UsageCount)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "Discrepancies: %d\n", len(report))
}
