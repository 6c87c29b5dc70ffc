package runtime

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/oplcgo/runtime/hardware"
	"github.com/oplcgo/runtime/image"
	"github.com/oplcgo/runtime/modbus"
	"github.com/oplcgo/runtime/scheduler"
)

// Runtime is the assembled process: one process image, one Modbus/TCP
// listener, one scan scheduler, and one attached hardware layer.
type Runtime struct {
	cfg Config
	log *logrus.Logger

	img      *image.Image
	engine   *modbus.Engine
	listener *modbus.Listener
	sched    *scheduler.Scheduler
	hw       hardware.Layer
}

// New assembles a Runtime. scan is the compiled program's entry point
// (§6's config_run); hw is the attached hardware layer, or
// hardware.Null{} if none. log may be nil.
func New(cfg Config, img *image.Image, scan scheduler.ScanFunc, hw hardware.Layer, log *logrus.Logger) (*Runtime, error) {
	cfg = cfg.WithEnvOverrides()

	engine := modbus.NewEngine(img, log)
	listener, err := modbus.Listen(cfg.ModbusAddr, engine, log)
	if err != nil {
		return nil, fmt.Errorf("runtime: listen modbus: %w", err)
	}

	sched := scheduler.New(img, hw, scan, cfg.CyclePeriod, log)

	return &Runtime{
		cfg:      cfg,
		log:      log,
		img:      img,
		engine:   engine,
		listener: listener,
		sched:    sched,
		hw:       hw,
	}, nil
}

// Engine returns the Modbus protocol engine, for tests or introspection.
func (r *Runtime) Engine() *modbus.Engine { return r.engine }

// Scheduler returns the scan scheduler, for tests or introspection.
func (r *Runtime) Scheduler() *scheduler.Scheduler { return r.sched }

// Run starts the hardware layer, then runs the scheduler and the Modbus
// acceptor concurrently until ctx is canceled or one of them returns a
// fatal error — mirroring §5's "the process exits on a fatal error"
// without burying os.Exit calls in library code. On return, the
// hardware layer is given a chance to shut down if it implements
// hardware.ShutdownLayer.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.hw.Initialize(ctx); err != nil {
		return fmt.Errorf("runtime: initialize hardware: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := r.sched.Run(gctx)
		if err == context.Canceled || err == context.DeadlineExceeded {
			return nil
		}
		return err
	})

	group.Go(func() error {
		err := r.listener.Serve(gctx)
		if err == context.Canceled {
			return nil
		}
		return err
	})

	err := group.Wait()

	if shutdown, ok := r.hw.(hardware.ShutdownLayer); ok {
		shutdownCtx := context.Background()
		if sdErr := shutdown.Shutdown(shutdownCtx); sdErr != nil && r.log != nil {
			r.log.WithError(sdErr).Warn("runtime: hardware shutdown failed")
		}
	}

	return err
}
