package util

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/api/write"
)

func TestRecordingWriteAPIKeepsRecent(t *testing.T) {
	w := NewRecordingWriteAPI(2)
	for _, name := range []string{"a", "b", "c"} {
		w.WritePoint(write.NewPoint(name, nil, map[string]interface{}{"packets": 1}, time.Now()))
	}
	w.Flush()

	points := w.Points()
	if len(points) != 2 || points[0].Name() != "b" || points[1].Name() != "c" {
		t.Errorf("kept %d points", len(points))
	}
	if w.Flushes() != 1 {
		t.Errorf("%d flushes, want 1", w.Flushes())
	}
}
