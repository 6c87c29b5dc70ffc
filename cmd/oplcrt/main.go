// Command oplcrt hosts the runtime core: it builds a process image,
// attaches the reference serial driver when OPLC_SERIAL_DEVICE is set,
// starts the Modbus/TCP server and scan scheduler, and runs until
// SIGINT or SIGTERM. The compiled control program itself — config_init
// populating the image, config_run executing ladder logic — is an
// external collaborator (§6); this binary stands in for it with a
// fixed demonstration image so the runtime is runnable standalone.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/oplcgo/runtime/hardware"
	"github.com/oplcgo/runtime/image"
	oplcruntime "github.com/oplcgo/runtime/runtime"
	"github.com/oplcgo/runtime/scheduler"
	"github.com/oplcgo/runtime/serial"
)

func buildImage() *image.Image {
	img := image.New()

	for i := 0; i < 32; i++ {
		img.Bind(image.Output, image.Bool, 0, i, image.NewBoolCell())
		img.Bind(image.Input, image.Bool, 0, i, image.NewBoolCell())
	}
	for i := 0; i < 16; i++ {
		img.Bind(image.Output, image.UInt, 0, i, image.NewIntCell(image.UInt))
		img.Bind(image.Input, image.UInt, 0, i, image.NewIntCell(image.UInt))
	}

	img.Start()
	return img
}

// demoScan is a stand-in config_run: it mirrors digital output 0 onto
// digital input 0 so a Modbus client has something observable to poll.
// A real deployment replaces this with the compiler's generated entry
// point.
func demoScan(img *image.Image) scheduler.ScanFunc {
	return func(tick uint64) {
		out := img.Cell(image.Output, image.Bool, 0, 0)
		in := img.Cell(image.Input, image.Bool, 0, 0)
		if out != nil && in != nil {
			in.SetBool(out.Bool())
		}
	}
}

func buildHardware(log *logrus.Logger) hardware.Layer {
	device := os.Getenv("OPLC_SERIAL_DEVICE")
	if device == "" {
		return hardware.Null{}
	}

	baud := serial.Baud9600
	if v := os.Getenv("OPLC_SERIAL_BAUD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			baud = serial.BaudRate(n)
		}
	}

	driver, err := serial.NewDriver(device, baud, log)
	if err != nil {
		log.WithError(err).Fatal("oplcrt: unable to open serial device")
	}
	return driver
}

func main() {
	log := logrus.New()
	log.SetLevel(logrus.InfoLevel)

	img := buildImage()
	hw := buildHardware(log)

	cfg := oplcruntime.Config{ModbusAddr: ":502"}
	rt, err := oplcruntime.New(cfg, img, demoScan(img), hw, log)
	if err != nil {
		log.WithError(err).Fatal("oplcrt: unable to assemble runtime")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("oplcrt: starting")
	if err := rt.Run(ctx); err != nil {
		log.WithError(err).Error("oplcrt: exited with error")
		os.Exit(1)
	}
	log.Info("oplcrt: stopped")
}
