package envire

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-envire/envire")
var meter = otel.Meter("github.com/go-envire/envire")

// updateAllOperatorCounter counts the operators resolved by each call to
// Environment.UpdateAll that returns without error (operators with no
// update hook included), so a long-running process can be monitored for
// update-all doing unexpectedly much or little work. A call that returns an
// error adds nothing.
var updateAllOperatorCounter metric.Int64Counter

func init() {
	var err error
	updateAllOperatorCounter, err = meter.Int64Counter(
		"envire_update_all_operators_run",
		metric.WithDescription("number of operators resolved by UpdateAll calls that succeeded"),
	)
	if err != nil {
		panic(fmt.Sprintf("envire: failed to init 'envire_update_all_operators_run' instrument: %v", err))
	}
}
