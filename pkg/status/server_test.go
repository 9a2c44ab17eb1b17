package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/norasector/playsdr/pkg/capture"
	"github.com/norasector/playsdr/pkg/monitor"
)

type fakeProvider struct {
	stats capture.Stats
}

func (f *fakeProvider) Stats() capture.Stats { return f.stats }

func TestStatsEndpoint(t *testing.T) {
	p := &fakeProvider{stats: capture.Stats{State: "streaming", Packets: 12, Bytes: 4096, Resolution: "8-bit"}}
	srv := httptest.NewServer(NewServer(0, p).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stats")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var got capture.Stats
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got != p.stats {
		t.Errorf("stats = %+v, want %+v", got, p.stats)
	}
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state string
		code  int
	}{
		{capture.StateIdle.String(), http.StatusOK},
		{capture.StateStreaming.String(), http.StatusOK},
		{capture.StateDraining.String(), http.StatusServiceUnavailable},
		{capture.StateTerminated.String(), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			h := NewServer(0, &fakeProvider{stats: capture.Stats{State: tt.state}}).Handler()
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tt.code {
				t.Errorf("code = %d, want %d", rec.Code, tt.code)
			}
		})
	}
}

func TestRootRedirects(t *testing.T) {
	h := NewServer(0, &fakeProvider{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusFound || rec.Header().Get("Location") != "/stats" {
		t.Errorf("code %d location %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestSpectrumRoutes(t *testing.T) {
	h := NewServer(0, &fakeProvider{}).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spectrum", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("spectrum without monitor: code %d, want 404", rec.Code)
	}

	spectrum, err := monitor.NewSpectrum(16, 100e6, 1e6)
	if err != nil {
		t.Fatal(err)
	}
	h = NewServer(0, &fakeProvider{}, WithSpectrum(spectrum)).Handler()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spectrum.png", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("empty spectrum image: code %d, want 503", rec.Code)
	}

	spectrum.Observe(capture.Packet{I: make([]int16, 16), Q: make([]int16, 16)})
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/spectrum", nil))
	var snap monitor.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if !snap.Ready || len(snap.Bins) != 16 {
		t.Errorf("snapshot ready %v with %d bins", snap.Ready, len(snap.Bins))
	}
}
