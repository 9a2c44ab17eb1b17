package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// RecordingWriteAPI is an in-memory InfluxDB write API for tests. It keeps the
// most recent points so the output of a reporter can be inspected.
type RecordingWriteAPI struct {
	mu      sync.Mutex
	points  []*write.Point
	keep    int
	flushes int
}

func NewRecordingWriteAPI(keep int) *RecordingWriteAPI {
	return &RecordingWriteAPI{keep: keep}
}

func (m *RecordingWriteAPI) WriteRecord(line string) {}

func (m *RecordingWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.keep <= 0 {
		return
	}
	m.points = append(m.points, point)
	if len(m.points) > m.keep {
		m.points = m.points[len(m.points)-m.keep:]
	}
}

func (m *RecordingWriteAPI) Flush() {
	m.mu.Lock()
	m.flushes++
	m.mu.Unlock()
}

func (m *RecordingWriteAPI) Close() {}

func (m *RecordingWriteAPI) Errors() <-chan error { return nil }

func (m *RecordingWriteAPI) Points() []*write.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*write.Point(nil), m.points...)
}

func (m *RecordingWriteAPI) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}
