package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/infusionsync_backend/config"
	"bitbucket.org/mmdatafocus/infusionsync_backend/erp"
	"bitbucket.org/mmdatafocus/infusionsync_backend/models"
	"bitbucket.org/mmdatafocus/infusionsync_backend/workflow"
)

// One-shot reconciliation for a single purchase reference: runs the
// build pass and then the receive pass against the scoped lines.
// Useful when one order is stuck and a full scheduled run is overkill.
func main() {
	poFilter := flag.String("po", "", "Required: purchase reference filter (space acts as a wildcard)")
	buildOnly := flag.Bool("build-only", false, "Run only the order-build pass")
	receiveOnly := flag.Bool("receive-only", false, "Run only the receive pass")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall deadline")
	flag.Parse()

	if strings.TrimSpace(*poFilter) == "" {
		fmt.Fprintln(os.Stderr, "--po is required")
		os.Exit(2)
	}
	if *buildOnly && *receiveOnly {
		fmt.Fprintln(os.Stderr, "--build-only and --receive-only are mutually exclusive")
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}
	logger := config.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	settings, err := models.GetReconSettings(ctx, db)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load settings: %v\n", err)
		os.Exit(1)
	}
	store, err := erp.NewRestStore()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init record store: %v\n", err)
		os.Exit(1)
	}
	refs, err := erp.LoadRefMaps(ctx, store, settings.SearchLimit())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load reference maps: %v\n", err)
		os.Exit(1)
	}

	deps := workflow.PhaseDeps{
		DB:       db,
		Logger:   logger,
		Store:    store,
		Settings: settings,
		Refs:     refs,
		Workers:  1,
	}

	if !*receiveOnly {
		summary, err := workflow.BuildOrders(ctx, deps, strings.TrimSpace(*poFilter))
		if err != nil {
			fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("build: created=%d updated=%d failed=%d\n", summary.Created, summary.Updated, summary.Failed)
	}
	if !*buildOnly {
		summary, err := workflow.ReceiveOrders(ctx, deps, strings.TrimSpace(*poFilter))
		if err != nil {
			fmt.Fprintf(os.Stderr, "receive failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("receive: created=%d updated=%d failed=%d\n", summary.Created, summary.Updated, summary.Failed)
	}
}
