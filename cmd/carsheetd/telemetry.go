package main

import (
	"context"
	"log/slog"

	"carsheet-backend/lib/restyutil"
	"carsheet-backend/lib/scrapers/carsheet"
	"carsheet-backend/lib/serviceutil"
	"carsheet-backend/lib/telemetry"
)

func InitTelemetry(ctx context.Context, verbose bool) {
	telemetry.InitSlog(verbose)

	if verbose {
		slog.DebugContext(ctx, "verbose logging enabled")
	}

	err := telemetry.SetupFromEnv(ctx, "carsheetd")
	if err != nil {
		serviceutil.Fatal("setup telemetry", err)
	}
	go func() {
		<-ctx.Done()
		telemetry.Shutdown(context.Background())
	}()
	telemetry.InstrumentPerfStats(ctx)

	if !verbose {
		return
	}

	carsheet.SetRestyInstrumentOutput(
		restyutil.NewFilesystemOutput(".dev/resty/carsheet"),
	)
}
