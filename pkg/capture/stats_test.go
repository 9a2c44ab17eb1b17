package capture

import (
	"context"
	"testing"
	"time"

	"github.com/norasector/playsdr/pkg/util"
)

type fixedStats Stats

func (f fixedStats) Stats() Stats { return Stats(f) }

func TestStatsReporterFinalPoint(t *testing.T) {
	writeAPI := util.NewRecordingWriteAPI(10)
	provider := fixedStats{Packets: 3, Bytes: 96, Resets: 1, Allocations: 1}
	r := NewStatsReporter(provider, writeAPI, time.Hour, map[string]string{"device": "sim"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatal(err)
	}

	points := writeAPI.Points()
	if len(points) != 1 {
		t.Fatalf("%d points, want 1", len(points))
	}
	if writeAPI.Flushes() != 1 {
		t.Errorf("%d flushes, want 1", writeAPI.Flushes())
	}

	pt := points[0]
	if pt.Name() != "playsdr.capture" {
		t.Errorf("measurement = %q", pt.Name())
	}
	fields := map[string]interface{}{}
	for _, f := range pt.FieldList() {
		fields[f.Key] = f.Value
	}
	if fields["bytes_written"] != int64(96) || fields["packets"] != int64(3) {
		t.Errorf("fields = %v", fields)
	}
	tags := map[string]string{}
	for _, tag := range pt.TagList() {
		tags[tag.Key] = tag.Value
	}
	if tags["device"] != "sim" {
		t.Errorf("tags = %v", tags)
	}
}

func TestStatsReporterTicks(t *testing.T) {
	writeAPI := util.NewRecordingWriteAPI(100)
	r := NewStatsReporter(fixedStats{}, writeAPI, time.Millisecond, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	r.Run(ctx)

	if n := len(writeAPI.Points()); n < 2 {
		t.Errorf("%d points after ticking, want at least 2", n)
	}
}

func TestPipelineStatsSnapshot(t *testing.T) {
	p := newTestPipeline(t, &recordingSink{}, Options{Resolution: Resolution16, Order: OrderQI, SampleLimit: 10})
	if err := p.HandlePacket(testPacket(4, 0, 0)); err != nil {
		t.Fatal(err)
	}
	s := p.Stats()
	want := Stats{
		State:        "streaming",
		Packets:      1,
		Bytes:        16,
		Allocations:  1,
		BudgetLeft:   24,
		WriteMicros:  s.WriteMicros,
		Resolution:   "16-bit",
		ChannelOrder: "QI",
	}
	if s != want {
		t.Errorf("Stats() = %+v, want %+v", s, want)
	}
}
