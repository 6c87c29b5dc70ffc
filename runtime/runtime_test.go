package runtime

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/oplcgo/runtime/hardware"
	"github.com/oplcgo/runtime/image"
)

func TestConfigWithEnvOverridesDefaults(t *testing.T) {
	cfg := Config{}.WithEnvOverrides()
	if cfg.CyclePeriod != defaultCyclePeriod {
		t.Fatalf("CyclePeriod = %v, want default %v", cfg.CyclePeriod, defaultCyclePeriod)
	}
	if cfg.ModbusAddr != ":502" {
		t.Fatalf("ModbusAddr = %q, want :502", cfg.ModbusAddr)
	}
}

func TestConfigWithEnvOverridesRespectsOPLCCycle(t *testing.T) {
	t.Setenv("OPLC_CYCLE", "20000000")
	cfg := Config{}.WithEnvOverrides()
	if cfg.CyclePeriod != 20*time.Millisecond {
		t.Fatalf("CyclePeriod = %v, want 20ms", cfg.CyclePeriod)
	}
}

func TestRuntimeServesModbusAndTicksScheduler(t *testing.T) {
	img := image.New()
	cell := image.NewBoolCell()
	img.Bind(image.Output, image.Bool, 0, 0, cell)
	img.Start()

	cfg := Config{ModbusAddr: "127.0.0.1:0", CyclePeriod: 5 * time.Millisecond}
	rt, err := New(cfg, img, func(tick uint64) {}, hardware.Null{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Run(ctx) }()

	addr := rt.listener.Addr().(*net.TCPAddr)
	conn, err := net.DialTCP("tcp", nil, addr)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}

	req := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00, 0x00, 0x08}
	if _, err := conn.Write(req); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	reply := make([]byte, 10)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := conn.Read(reply); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	conn.Close()

	time.Sleep(20 * time.Millisecond)
	if rt.Scheduler().Stats().TicksRun == 0 {
		t.Fatal("expected scheduler to have ticked at least once")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
