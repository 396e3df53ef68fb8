package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli"
	"go.uber.org/multierr"

	"github.com/cjeanneret/LiftGo/internal/config"
	"github.com/cjeanneret/LiftGo/internal/debug"
	"github.com/cjeanneret/LiftGo/internal/hw/gpio"
	"github.com/cjeanneret/LiftGo/internal/web"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "liftgo"
	app.Usage = "run the elevator and vision drive assist control loop"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Value: filepath.Join("configs", "default.yaml"),
			Usage: "path to config file",
		},
		cli.BoolFlag{
			Name:  "web",
			Usage: "start the web console",
		},
		cli.IntFlag{
			Name:  "port",
			Usage: "web console port (default: defaults.web_port)",
		},
		cli.Uint64Flag{
			Name:  "cycles",
			Usage: "stop after this many control cycles (0 = until interrupted)",
		},
		cli.Float64Flag{
			Name:  "height",
			Usage: "initial main winch height in meters",
		},
		cli.Float64Flag{
			Name:  "inner-height",
			Usage: "initial inner stage height in meters",
		},
		cli.BoolFlag{
			Name:  "assist",
			Usage: "start the vision drive assist",
		},
		cli.BoolFlag{
			Name:  "mock",
			Usage: "use mock GPIO regardless of config",
		},
	}
	app.Action = func(c *cli.Context) error {
		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()
		return run(ctx, c)
	}
	return app
}

// runOptions are the command line settings applied on top of the config.
type runOptions struct {
	cycles      uint64
	height      *float64
	innerHeight *float64
	assist      bool
	web         bool
	port        int
}

func optionsFromCLI(c *cli.Context) runOptions {
	o := runOptions{
		cycles: c.Uint64("cycles"),
		assist: c.Bool("assist"),
		web:    c.Bool("web"),
		port:   c.Int("port"),
	}
	if c.IsSet("height") {
		h := c.Float64("height")
		o.height = &h
	}
	if c.IsSet("inner-height") {
		h := c.Float64("inner-height")
		o.innerHeight = &h
	}
	return o
}

// validateOptions checks heights against the elevator's reachable range.
func validateOptions(o runOptions, maxHeight float64) error {
	for name, h := range map[string]*float64{"height": o.height, "inner-height": o.innerHeight} {
		if h == nil {
			continue
		}
		if math.IsNaN(*h) || math.IsInf(*h, 0) || *h < 0 {
			return fmt.Errorf("%s must be a finite height >= 0, got %g", name, *h)
		}
		if name == "height" && maxHeight > 0 && *h > maxHeight {
			return fmt.Errorf("height must be <= %.3f m, got %g", maxHeight, *h)
		}
	}
	if o.port < 0 || o.port > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", o.port)
	}
	return nil
}

func run(ctx context.Context, c *cli.Context) error {
	cfgPath := c.String("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if c.Bool("mock") {
		cfg.Defaults.MockGPIO = true
	}
	return runWith(ctx, cfg, optionsFromCLI(c))
}

func runWith(ctx context.Context, cfg *config.Config, opts runOptions) error {
	maxHeight := cfg.Elevator.LowerSoftLimit * cfg.Elevator.WinchMetersPerCount
	if err := validateOptions(opts, maxHeight); err != nil {
		return fmt.Errorf("invalid option: %w", err)
	}

	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Control period", cfg.Period())

	debug.Value("Mock GPIO", cfg.Defaults.MockGPIO)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockGPIO)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}

	source, err := openVision(ctx, cfg)
	if err != nil {
		return multierr.Append(fmt.Errorf("init vision failed: %w", err), gpioDriver.Close())
	}

	r, err := newRobot(cfg, gpioDriver, source)
	if err != nil {
		err = fmt.Errorf("init robot failed: %w", err)
		if c, ok := source.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
		return multierr.Append(err, gpioDriver.Close())
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Printf("closing hardware failed: %v", err)
		}
	}()

	if opts.height != nil {
		r.elevator.SetHeight(*opts.height)
	}
	if opts.innerHeight != nil {
		r.elevator.SetInnerStageHeight(*opts.innerHeight)
	}
	if opts.assist {
		r.scheduler.Schedule(r.assist)
	}
	r.scheduler.SetLimit(opts.cycles)

	loopCtx, stop := context.WithCancel(ctx)
	defer stop()

	webErr := make(chan error, 1)
	if opts.web {
		port := cfg.Defaults.WebPort
		if opts.port > 0 {
			port = opts.port
		}
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		handlers := web.NewHandlers(broadcaster, r.table, r.postElevator, r.postAssist, r.consoleConfig(cfg), nil)
		srv := web.NewServer(fmt.Sprintf(":%d", port), handlers)
		go func() {
			err := srv.Run(loopCtx)
			if err != nil {
				stop()
			}
			webErr <- err
		}()
	}

	debug.Section("Control loop")
	err = r.scheduler.Run(loopCtx, cfg.Period())
	stop()

	debug.Summary("Shutdown")
	debug.Info("Cycles: %d, height %.3f m, inner %.3f m", r.scheduler.Cycles(), r.elevator.Height(), r.elevator.InnerStageHeight())

	if opts.web {
		if werr := <-webErr; werr != nil {
			return fmt.Errorf("web server: %w", werr)
		}
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
