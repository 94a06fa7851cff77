package listings

import (
	"carsheet-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("carsheet.services.listings")
