package capture

import (
	"context"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

// Stats is a point-in-time copy of the pipeline counters.
type Stats struct {
	State        string `json:"state"`
	Packets      int64  `json:"packets"`
	Bytes        int64  `json:"bytes"`
	Resets       int64  `json:"resets"`
	Allocations  int64  `json:"allocations"`
	Gaps         int64  `json:"gaps"`
	LastSample   uint32 `json:"last_first_sample"`
	BudgetLeft   int64  `json:"budget_left_bytes,omitempty"`
	WriteMicros  int64  `json:"last_write_us"`
	Resolution   string `json:"resolution"`
	ChannelOrder string `json:"channel_order"`
}

type counters struct {
	packets     atomic.Int64
	bytes       atomic.Int64
	resets      atomic.Int64
	allocations atomic.Int64
	gaps        atomic.Int64
	lastSample  atomic.Uint32
	budgetLeft  atomic.Int64
	writeMicros atomic.Int64
}

type StatsProvider interface {
	Stats() Stats
}

// StatsReporter periodically pushes pipeline counters to InfluxDB.
type StatsReporter struct {
	provider StatsProvider
	writeAPI api.WriteAPI
	interval time.Duration
	tags     map[string]string
}

func NewStatsReporter(provider StatsProvider, writeAPI api.WriteAPI, interval time.Duration, tags map[string]string) *StatsReporter {
	if interval <= 0 {
		interval = time.Second
	}
	return &StatsReporter{
		provider: provider,
		writeAPI: writeAPI,
		interval: interval,
		tags:     tags,
	}
}

// Run reports until ctx is done, then writes a final point and flushes.
func (r *StatsReporter) Run(ctx context.Context) error {
	tick := time.NewTicker(r.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			r.report()
			r.writeAPI.Flush()
			return nil
		case <-tick.C:
			r.report()
		}
	}
}

func (r *StatsReporter) report() {
	s := r.provider.Stats()
	r.writeAPI.WritePoint(influxdb2.NewPoint("playsdr.capture",
		r.tags,
		map[string]interface{}{
			"packets":       s.Packets,
			"bytes_written": s.Bytes,
			"resets":        s.Resets,
			"allocations":   s.Allocations,
			"gaps":          s.Gaps,
			"write_us":      s.WriteMicros,
		}, time.Now()))
}
