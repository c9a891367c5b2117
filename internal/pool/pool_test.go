package pool

import "testing"

func TestGetBufferReturnsRequestedLength(t *testing.T) {
	buf := GetBuffer(128)
	if len(buf) != 128 {
		t.Fatalf("len = %d, want 128", len(buf))
	}
	PutBuffer(buf)
}

func TestGetBufferReusesPooledCapacity(t *testing.T) {
	first := GetBuffer(64)
	PutBuffer(first)

	second := GetBuffer(32)
	if len(second) != 32 {
		t.Fatalf("len = %d, want 32", len(second))
	}
}

func TestPutBufferDropsOversizedBuffers(t *testing.T) {
	Configure(Config{Enabled: true, MaxSize: 16})
	defer Configure(Config{Enabled: true, MaxSize: 64 << 20})

	PutBuffer(make([]byte, 0, 1024))
	buf := GetBuffer(8)
	if len(buf) != 8 {
		t.Fatalf("len = %d, want 8", len(buf))
	}
}

func TestDisabledPoolAllocatesDirectly(t *testing.T) {
	Configure(Config{Enabled: false})
	defer Configure(Config{Enabled: true, MaxSize: 64 << 20})

	buf := GetBuffer(10)
	if len(buf) != 10 {
		t.Fatalf("len = %d, want 10", len(buf))
	}
	PutBuffer(buf)
}
