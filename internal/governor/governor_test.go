package governor

import (
	"bytes"
	"testing"
	"time"

	"github.com/alphaleadership/skid-inc-sub000/internal/event"
)

func newTestGovernor(t *testing.T, cfg Config) *Governor {
	t.Helper()
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestCompress_RoundTrip(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	payload := bytes.Repeat([]byte("skidinc save data "), 256) // well above 1 KiB

	res := g.Compress(payload)
	if !res.Compressed {
		t.Fatal("payload above threshold was not compressed")
	}
	if !IsCompressed(res.Data) {
		t.Fatal("compressed payload does not carry gzip magic")
	}
	if res.CompressedSize >= res.OriginalSize {
		t.Fatalf("compressed %d >= original %d", res.CompressedSize, res.OriginalSize)
	}
	if res.Ratio <= 0 || res.Ratio >= 1 {
		t.Fatalf("ratio = %v, want (0, 1)", res.Ratio)
	}

	out, err := g.Decompress(res.Data)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("round trip mismatch")
	}
}

func TestCompress_SkipsBelowThreshold(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	small := []byte("tiny")
	res := g.Compress(small)
	if res.Compressed {
		t.Fatal("payload below threshold was compressed")
	}
	if !bytes.Equal(res.Data, small) {
		t.Fatal("payload bytes changed without compression")
	}
}

func TestCompress_Disabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CompressionDisabled = true
	g := newTestGovernor(t, cfg)

	res := g.Compress(bytes.Repeat([]byte("x"), 4096))
	if res.Compressed {
		t.Fatal("compression ran while disabled")
	}
}

func TestDecompress_PassesThroughPlain(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	plain := []byte(`{"player":{}}`)
	out, err := g.Decompress(plain)
	if err != nil {
		t.Fatalf("Decompress: %v", err)
	}
	if !bytes.Equal(out, plain) {
		t.Fatal("plain payload altered")
	}
}

func TestDecompress_CorruptStream(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	corrupt := []byte{0x1f, 0x8b, 0xff, 0x00, 0x01}
	if _, err := g.Decompress(corrupt); err == nil {
		t.Fatal("Decompress of corrupt gzip stream returned nil error")
	}
}

func TestAdaptiveInterval_HighActivity(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	base := g.BaseInterval()
	now := time.Now()
	g.nowFn = func() time.Time { return now }

	for i := 0; i < 40; i++ {
		g.RecordActivity(ActivityStateChange)
	}
	// Close the window: the 40-event minute drives the adjustment.
	now = now.Add(time.Minute + time.Second)
	g.RecordActivity(ActivityStateChange)

	want := time.Duration(float64(base) * 0.5)
	if got := g.CurrentInterval(); got != want {
		t.Fatalf("CurrentInterval = %v, want %v", got, want)
	}
}

func TestAdaptiveInterval_LowActivity(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	base := g.BaseInterval()
	now := time.Now()
	g.nowFn = func() time.Time { return now }

	g.RecordActivity(ActivityCommand)
	g.RecordActivity(ActivityCommand)
	now = now.Add(time.Minute + time.Second)
	g.RecordActivity(ActivityCommand)

	want := 2 * base
	if got := g.CurrentInterval(); got != want {
		t.Fatalf("CurrentInterval = %v, want %v", got, want)
	}
}

func TestAdaptiveInterval_Deadband(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseInterval = 8 * time.Second // half-step is 4s, inside the 5s deadband
	g := newTestGovernor(t, cfg)

	now := time.Now()
	g.nowFn = func() time.Time { return now }

	for i := 0; i < 40; i++ {
		g.RecordActivity(ActivityStateChange)
	}
	now = now.Add(time.Minute + time.Second)
	g.RecordActivity(ActivityStateChange)

	if got := g.CurrentInterval(); got != cfg.BaseInterval {
		t.Fatalf("CurrentInterval = %v, want unchanged %v", got, cfg.BaseInterval)
	}
}

func TestAdaptiveInterval_PublishesChange(t *testing.T) {
	bus := event.NewBus()
	var changes []event.IntervalChanged
	bus.Subscribe(func(ev event.Event) {
		if ic, ok := ev.(event.IntervalChanged); ok {
			changes = append(changes, ic)
		}
	})

	cfg := DefaultConfig()
	cfg.Bus = bus
	g := newTestGovernor(t, cfg)

	now := time.Now()
	g.nowFn = func() time.Time { return now }

	g.RecordActivity(ActivityCommand)
	now = now.Add(time.Minute + time.Second)
	g.RecordActivity(ActivityCommand)

	if len(changes) != 1 {
		t.Fatalf("IntervalChanged events = %d, want 1", len(changes))
	}
	if changes[0].Current != 2*cfg.BaseInterval {
		t.Fatalf("event Current = %v, want %v", changes[0].Current, 2*cfg.BaseInterval)
	}
}

func TestCheckMemory_Thresholds(t *testing.T) {
	bus := event.NewBus()
	var pressure []event.MemoryPressure
	bus.Subscribe(func(ev event.Event) {
		if mp, ok := ev.(event.MemoryPressure); ok {
			pressure = append(pressure, mp)
		}
	})

	// Tiny ceiling: any live heap is critical.
	cfg := DefaultConfig()
	cfg.MemoryCeiling = 1
	cfg.Bus = bus
	g := newTestGovernor(t, cfg)

	sample := g.CheckMemory()
	if sample.Level != event.MemoryCritical {
		t.Fatalf("Level = %q, want critical with 1-byte ceiling", sample.Level)
	}
	if len(pressure) != 1 {
		t.Fatalf("pressure events = %d, want 1", len(pressure))
	}

	// Huge ceiling: no pressure.
	cfg = DefaultConfig()
	cfg.MemoryCeiling = 1 << 60
	g = newTestGovernor(t, cfg)
	if sample := g.CheckMemory(); sample.Level != "" {
		t.Fatalf("Level = %q, want none with huge ceiling", sample.Level)
	}
}

func TestCheckMemory_BoundedHistory(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	for i := 0; i < memoryHistorySize+10; i++ {
		g.CheckMemory()
	}
	if n := len(g.MemoryHistory()); n != memoryHistorySize {
		t.Fatalf("history length = %d, want %d", n, memoryHistorySize)
	}
}

func TestScore_Bounded(t *testing.T) {
	g := newTestGovernor(t, DefaultConfig())

	if s := g.Score(); s < 0 || s > 100 {
		t.Fatalf("Score = %d, want 0..100", s)
	}

	// Pressure now should lower the score but keep it bounded.
	cfg := DefaultConfig()
	cfg.MemoryCeiling = 1
	g = newTestGovernor(t, cfg)
	g.CheckMemory()
	if s := g.Score(); s < 0 || s > 100 {
		t.Fatalf("Score under pressure = %d, want 0..100", s)
	}
}
