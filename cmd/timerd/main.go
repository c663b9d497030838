package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/warpdl/timerkit/internal/daemon"
	"github.com/warpdl/timerkit/internal/script"
	"github.com/warpdl/timerkit/internal/server"
	"github.com/warpdl/timerkit/pkg/logger"
	"github.com/warpdl/timerkit/pkg/timers"
)

var version = "dev"

func main() {
	if err := Execute(os.Args); err != nil {
		log.Fatalln(err)
	}
}

func Execute(args []string) error {
	app := cli.App{
		Name:      "timerd",
		HelpName:  "timerd",
		Usage:     "A standalone script timer daemon.",
		Version:   version,
		UsageText: "timerd <command> [arguments...]",
		Commands: []cli.Command{
			{
				Name:   "run",
				Usage:  "start the timer daemon",
				Action: run,
				Flags: []cli.Flag{
					cli.IntFlag{
						Name:  "port, p",
						Usage: "port for the JSON-RPC endpoint",
						Value: 7340,
					},
					cli.StringFlag{
						Name:  "secret",
						Usage: "bearer token required on the RPC endpoints (empty disables auth)",
					},
					cli.StringFlag{
						Name:  "eval, e",
						Usage: "script evaluated at startup, before timers can fire",
					},
					cli.BoolFlag{
						Name:  "suspended",
						Usage: "start with all timers suspended",
					},
					cli.BoolFlag{
						Name:  "debug",
						Usage: "emit debug logs",
					},
				},
			},
		},
	}
	return app.Run(args)
}

func run(c *cli.Context) error {
	var l logger.Logger
	if c.Bool("debug") {
		l = logger.NewDebugLogger(log.Default())
	} else {
		l = logger.NewStandardLogger(log.Default())
	}
	defer l.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := daemon.New(daemon.Config{StartSuspended: c.Bool("suspended")}, l)
	runErr := make(chan error, 1)
	go func() { runErr <- runner.Run(ctx) }()

	if err := waitRunning(ctx, runner); err != nil {
		return err
	}

	if code := c.String("eval"); code != "" {
		err := runner.Call(ctx, func(_ *timers.OneshotTimers, rt *script.Runtime) {
			rt.EvaluateCode(code)
		})
		if err != nil {
			return err
		}
	}

	rs := server.NewRPCServer(server.Config{
		Secret:  c.String("secret"),
		Version: version,
	}, runner, l)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", c.Int("port")),
		Handler: rs.Handler(),
	}

	httpErr := make(chan error, 1)
	go func() { httpErr <- srv.ListenAndServe() }()
	l.Info("timerd %s listening on %s", version, srv.Addr)

	select {
	case err := <-httpErr:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		l.Warning("http shutdown: %v", err)
	}
	if err := <-runErr; err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// waitRunning blocks until the runner's loop is consuming commands.
func waitRunning(ctx context.Context, r *daemon.Runner) error {
	for !r.IsRunning() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
	}
	return nil
}
