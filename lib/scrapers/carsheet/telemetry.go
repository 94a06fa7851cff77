package carsheet

import (
	"carsheet-backend/lib/restyutil"
	"carsheet-backend/lib/telemetry"
)

var tracer = telemetry.Tracer("carsheet.lib.scrapers.carsheet")
var restyInstrumentOutput restyutil.InstrumentOutput

// SetRestyInstrumentOutput enables request/response capture on clients
// created after this call.
func SetRestyInstrumentOutput(out restyutil.InstrumentOutput) {
	restyInstrumentOutput = out
}
