// Package main is the entrypoint for the stopsearch CLI.
//
// The tool performs a bounded, one-shot batch retrieval of stop-and-search
// incidents for either a polygon boundary file or a named force, across a
// rolling window of calendar months, and writes the flattened result to a
// CSV file. All business logic lives in the internal packages; this file
// handles flag parsing, configuration, and dependency wiring.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"stopsearch/internal/boundary"
	"stopsearch/internal/config"
	"stopsearch/internal/export"
	"stopsearch/internal/external"
	"stopsearch/internal/flatten"
	"stopsearch/internal/retrieve"
	"stopsearch/internal/types"
)

func main() {
	var (
		forceID    = flag.String("force", "", "force identifier to retrieve (see -list-forces)")
		polyFile   = flag.String("poly-file", "", "path to a boundary polygon JSON file")
		month      = flag.Int("month", 0, "starting month 1-12 (default: latest available)")
		year       = flag.Int("year", 0, "starting year (default: latest available)")
		months     = flag.Int("months", 0, "months to walk backwards (default from config, normally 12)")
		outPath    = flag.String("out", "stop_and_search.csv", "output CSV path")
		listForces = flag.Bool("list-forces", false, "list available forces and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := external.NewClient(
		&http.Client{Timeout: cfg.API.Timeout},
		external.ClientConfig{
			BaseURL:   cfg.API.BaseURL,
			UserAgent: cfg.API.UserAgent,
			Retry: external.RetryPolicy{
				MaxRetries: cfg.API.MaxRetries,
				MinWait:    cfg.API.RetryMinWait,
				MaxWait:    cfg.API.RetryMaxWait,
			},
			Logger: logger,
		},
	)

	if *listForces {
		forces, err := client.ListForces(ctx)
		if err != nil {
			logger.Error("failed to list forces", "error", err)
			os.Exit(1)
		}
		for _, f := range forces {
			fmt.Printf("%-30s %s\n", f.ID, f.Name)
		}
		return
	}

	if (*forceID == "") == (*polyFile == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -force or -poly-file is required")
		flag.Usage()
		os.Exit(2)
	}

	count := *months
	if count == 0 {
		count = cfg.Retrieval.DefaultMonths
	}

	service := retrieve.NewService(retrieve.ServiceConfig{
		Client:    client,
		Flattener: flatten.New(flatten.ParseStrictness(cfg.Retrieval.Strictness), logger),
		Limiter:   rate.NewLimiter(rate.Every(cfg.API.RequestInterval), 1),
		Logger:    logger,
		Progress: func(ev retrieve.ProgressEvent) {
			fmt.Printf("%d of %d: %s (%d records)\n", ev.Index, ev.Total, ev.Period, ev.Records)
		},
	})

	table, err := run(ctx, client, service, *forceID, *polyFile, *year, *month, count)
	if err != nil {
		logger.Error("retrieval failed", "error", err, "code", types.CodeOf(err))
		os.Exit(1)
	}

	opts := export.Options{
		AbsentMarker: cfg.Export.AbsentMarker,
		IncludeIndex: cfg.Export.IncludeIndex,
	}
	if err := export.WriteCSVFile(*outPath, table, opts); err != nil {
		logger.Error("failed to write output", "error", err, "path", *outPath)
		os.Exit(1)
	}

	logger.Info("retrieval complete",
		"rows", table.NumRows(),
		"columns", len(table.Columns),
		"months", count,
		"output", *outPath,
	)
}

// run resolves the starting period, generates the window, and dispatches
// to the matching retriever.
func run(
	ctx context.Context,
	client *external.Client,
	service *retrieve.Service,
	forceID, polyFile string,
	year, month, count int,
) (*types.ResultTable, error) {
	if forceID != "" {
		start, err := resolveForForce(ctx, client, service, forceID, year, month)
		if err != nil {
			return nil, err
		}
		window, err := types.GenerateWindow(start, count)
		if err != nil {
			return nil, err
		}
		return service.RetrieveForce(ctx, forceID, window)
	}

	polygon, err := boundary.Load(polyFile)
	if err != nil {
		return nil, err
	}
	start, err := service.ResolveStart(ctx, year, month)
	if err != nil {
		return nil, err
	}
	window, err := types.GenerateWindow(start, count)
	if err != nil {
		return nil, err
	}
	return service.RetrieveArea(ctx, polygon, window)
}

// resolveForForce resolves the starting period and validates the force
// identifier against the forces listing. The two metadata calls are
// independent, so they run concurrently; period resolution still skips
// the network entirely when both year and month were supplied.
func resolveForForce(
	ctx context.Context,
	client *external.Client,
	service *retrieve.Service,
	forceID string,
	year, month int,
) (types.Period, error) {
	var (
		start  types.Period
		forces []types.Force
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		start, err = service.ResolveStart(gctx, year, month)
		return err
	})
	g.Go(func() error {
		var err error
		forces, err = client.ListForces(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return types.Period{}, err
	}

	for _, f := range forces {
		if f.ID == forceID {
			return start, nil
		}
	}
	return types.Period{}, types.NewAppError(
		types.ErrCodeValidationMissingForce,
		fmt.Sprintf("unknown force %q; run with -list-forces for valid identifiers", forceID),
		nil,
	)
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
