package metrics

import (
	"context"
	"time"

	rpcmetrics "github.com/filecoin-project/go-jsonrpc/metrics"
	"go.opencensus.io/stats"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

// Distributions
var defaultMillisecondsDistribution = view.Distribution(
	0.01, 0.05, 0.1, 0.3, 0.6, 0.8, 1, 2, 3, 4, 5, 6, 8, // Very short intervals for fast operations
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100, // 10 ms intervals up to 100 ms
	150, 200, 250, 300, 350, 400, 450, 500, // 50 ms intervals from 100 to 500 ms
	600, 700, 800, 900, 1000, // 100 ms intervals from 500 to 1000 ms
	2000, 3000, 4000, 5000, 6000, 8000, 10000, 13000, 16000, 20000, 25000, 30000, 40000, 50000, 65000, 80000, 100000, // Larger, less frequent buckets
)

var batchSizeDistribution = view.Distribution(0, 1, 2, 3, 5, 7, 10, 15, 25, 35, 50)

// Tags
var (
	// common
	Version, _      = tag.NewKey("version")
	Commit, _       = tag.NewKey("commit")
	PeerID, _       = tag.NewKey("peer_id")
	Endpoint, _     = tag.NewKey("endpoint")
	APIInterface, _ = tag.NewKey("api")

	// transfer
	ProcessType, _  = tag.NewKey("process_type")
	ProcessState, _ = tag.NewKey("process_state")
	Event, _        = tag.NewKey("event")
	Protocol, _     = tag.NewKey("protocol")
	FailureType, _  = tag.NewKey("failure_type")
)

// Measures
var (
	// common
	TransferdInfo      = stats.Int64("info", "Arbitrary counter to tag transferd info to", stats.UnitDimensionless)
	APIRequestDuration = stats.Float64("api/request_duration_ms", "Duration of API requests", stats.UnitMilliseconds)

	// transfer
	ProcessCreated   = stats.Int64("transfer/process_created", "Counter for accepted transfer processes", stats.UnitDimensionless)
	ProcessEvent     = stats.Int64("transfer/process_event", "Counter for transfer process lifecycle events", stats.UnitDimensionless)
	ProcessFailure   = stats.Int64("transfer/process_failure", "Counter for transfer processes moved to ERROR", stats.UnitDimensionless)
	LoopPassDuration = stats.Float64("transfer/pass_duration_ms", "Duration of a full manager poll pass", stats.UnitMilliseconds)
	LoopPassBatch    = stats.Int64("transfer/pass_batch", "Processes picked up by a single poll pass", stats.UnitDimensionless)
	LoopWakeup       = stats.Int64("transfer/wakeup", "Counter for manager loop wakeups ahead of the timer", stats.UnitDimensionless)
	DispatchDuration = stats.Float64("transfer/dispatch_duration_ms", "Duration of dispatching a data request to a remote connector", stats.UnitMilliseconds)
)

// Views
var (
	InfoView = &view.View{
		Name:        "info",
		Description: "Transferd node information",
		Measure:     TransferdInfo,
		Aggregation: view.LastValue(),
		TagKeys:     []tag.Key{Version, Commit},
	}
	APIRequestDurationView = &view.View{
		Measure:     APIRequestDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{APIInterface, Endpoint},
	}
	ProcessCreatedView = &view.View{
		Measure:     ProcessCreated,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{ProcessType, Protocol},
	}
	ProcessEventView = &view.View{
		Measure:     ProcessEvent,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{Event, ProcessType},
	}
	ProcessFailureView = &view.View{
		Measure:     ProcessFailure,
		Aggregation: view.Count(),
		TagKeys:     []tag.Key{FailureType, ProcessType},
	}
	LoopPassDurationView = &view.View{
		Measure:     LoopPassDuration,
		Aggregation: defaultMillisecondsDistribution,
	}
	LoopPassBatchView = &view.View{
		Measure:     LoopPassBatch,
		Aggregation: batchSizeDistribution,
		TagKeys:     []tag.Key{ProcessState},
	}
	LoopWakeupView = &view.View{
		Measure:     LoopWakeup,
		Aggregation: view.Count(),
	}
	DispatchDurationView = &view.View{
		Measure:     DispatchDuration,
		Aggregation: defaultMillisecondsDistribution,
		TagKeys:     []tag.Key{Protocol},
	}
)

// DefaultViews is an array of OpenCensus views for metric gathering purposes
var DefaultViews = func() []*view.View {
	views := []*view.View{
		InfoView,
		APIRequestDurationView,

		ProcessCreatedView,
		ProcessEventView,
		ProcessFailureView,
		LoopPassDurationView,
		LoopPassBatchView,
		LoopWakeupView,
		DispatchDurationView,
	}
	views = append(views, rpcmetrics.DefaultViews...)
	return views
}()

// RegisterViews adds views to the default list without modifying this file.
func RegisterViews(v ...*view.View) {
	DefaultViews = append(DefaultViews, v...)
}

// SinceInMilliseconds returns the duration of time since the provide time as
// a float64.
func SinceInMilliseconds(startTime time.Time) float64 {
	return float64(time.Since(startTime).Milliseconds())
}

// Timer begins a timer and returns a function to stop it that records the
// duration against the given measure.
func Timer(ctx context.Context, m *stats.Float64Measure) func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		stats.Record(ctx, m.M(SinceInMilliseconds(start)))
		return time.Since(start)
	}
}
