package main

import (
	"context"

	"carsheet-backend/cmd/carsheet-cli/commands"
	"carsheet-backend/lib/telemetry"
)

func main() {
	telemetry.InitSlog(false)
	telemetry.SetupFromEnv(context.Background(), "carsheet-cli")
	commands.ExecuteContext(context.Background())
}
