package capture

import "testing"

func TestBufferEnsureStable(t *testing.T) {
	var b Buffer
	first, err := b.Ensure(336, Resolution16)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 336*4 {
		t.Fatalf("len = %d, want %d", len(first), 336*4)
	}

	for i := 0; i < 10; i++ {
		buf, err := b.Ensure(336, Resolution16)
		if err != nil {
			t.Fatal(err)
		}
		if &buf[0] != &first[0] {
			t.Fatalf("call %d reallocated the buffer", i)
		}
	}
	if b.Allocations() != 1 {
		t.Errorf("Allocations() = %d, want 1", b.Allocations())
	}
}

func TestBufferInvalidateAllowsReallocation(t *testing.T) {
	var b Buffer
	if _, err := b.Ensure(4, Resolution8); err != nil {
		t.Fatal(err)
	}
	b.Invalidate()
	buf, err := b.Ensure(4, Resolution8)
	if err != nil {
		t.Fatalf("Ensure after reset returned %v", err)
	}
	if len(buf) != 8 {
		t.Errorf("len = %d, want 8", len(buf))
	}
	if b.Allocations() != 2 {
		t.Errorf("Allocations() = %d, want 2", b.Allocations())
	}
}

func TestBufferCapacityChange(t *testing.T) {
	var b Buffer
	tests := []struct {
		packetLen   int
		wantLen     int
		allocations int
	}{
		{4, 8, 1},
		{8, 16, 2},
		{8, 16, 2},
		{2, 4, 2},
		{8, 16, 2},
		{16, 32, 3},
	}
	for _, tt := range tests {
		buf, err := b.Ensure(tt.packetLen, Resolution8)
		if err != nil {
			t.Fatal(err)
		}
		if len(buf) != tt.wantLen {
			t.Errorf("Ensure(%d) len = %d, want %d", tt.packetLen, len(buf), tt.wantLen)
		}
		if b.Allocations() != tt.allocations {
			t.Errorf("Ensure(%d) allocations = %d, want %d", tt.packetLen, b.Allocations(), tt.allocations)
		}
	}
}

func TestBufferEnsureInvalid(t *testing.T) {
	var b Buffer
	for _, n := range []int{0, -1, MaxPacketLen + 1} {
		_, err := b.Ensure(n, Resolution8)
		if stage, ok := StageOf(err); !ok || stage != StageAllocation {
			t.Errorf("Ensure(%d) error = %v, want allocation stage", n, err)
		}
	}
}
