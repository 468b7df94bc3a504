package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/shaiso/Courier/internal/api"
	"github.com/shaiso/Courier/internal/app"
	"github.com/shaiso/Courier/internal/mq"
	"github.com/shaiso/Courier/internal/telemetry"
	"github.com/shaiso/Courier/internal/worker"
)

const defaultMetricsAddr = ":8082"

// workerFlags - флаги команды worker.
type workerFlags struct {
	concurrency        int
	queues             []string
	logLevel           string
	noConfigureLogging bool
	dlx                string
	ackTimeout         int
	metricsAddr        string
}

// NewWorkerCmd создаёт команду запуска воркера.
func NewWorkerCmd(load Loader) *cobra.Command {
	var f workerFlags

	cmd := &cobra.Command{
		Use:   "worker APP",
		Short: "Start a worker consuming tasks of APP",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := f.validate(); err != nil {
				return err
			}
			return runWorker(cmd.Context(), load, args[0], cmd.Root().Version, f)
		},
	}

	cmd.Flags().IntVarP(&f.concurrency, "concurrency", "c", worker.DefaultConcurrency, "Maximum number of tasks executed at once")
	cmd.Flags().StringSliceVarP(&f.queues, "queues", "Q", nil, "Comma-separated queues to consume (default: TASK_DEFAULT_QUEUE)")
	cmd.Flags().StringVarP(&f.logLevel, "loglevel", "l", "", "Log level ("+strings.Join(telemetry.LevelNames, ", ")+"; default: LOG_LEVEL or INFO)")
	cmd.Flags().BoolVar(&f.noConfigureLogging, "no-configure-logging", false, "Leave the process logger untouched")
	cmd.Flags().StringVar(&f.dlx, "dlx", "", "Dead-letter exchange for rejected tasks")
	cmd.Flags().IntVar(&f.ackTimeout, "ack-timeout", 0, "Task deadline in seconds (0 disables)")
	cmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", defaultMetricsAddr, "Address for /metrics and /healthz (empty disables)")

	return cmd
}

func (f workerFlags) validate() error {
	if f.concurrency < 1 {
		return usageError("concurrency must be at least 1, got %d", f.concurrency)
	}
	if f.ackTimeout < 0 {
		return usageError("ack-timeout must not be negative, got %d", f.ackTimeout)
	}
	if f.logLevel != "" {
		if _, err := telemetry.ParseLevel(f.logLevel); err != nil {
			return usageError("%v (choose from %s)", err, strings.Join(telemetry.LevelNames, ", "))
		}
	}
	return nil
}

func (f workerFlags) level() slog.Level {
	if f.logLevel == "" {
		return telemetry.LogLevel()
	}
	level, _ := telemetry.ParseLevel(f.logLevel)
	return level
}

// runWorker запускает воркер до сигнала завершения.
func runWorker(ctx context.Context, load Loader, name, version string, f workerFlags) error {
	logger := slog.Default()
	if !f.noConfigureLogging {
		logger = telemetry.SetupLogger(f.level())
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	a, err := load(name, app.WithLogger(logger), app.WithMetrics(metrics))
	if err != nil {
		return err
	}

	// graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	topo := mq.Topology{
		DeadLetterExchange:      f.dlx,
		DeclareDeadLetterQueues: f.dlx != "",
		AckTimeout:              f.ackTimeout,
	}

	gw, closeConn, err := a.Connect(ctx, mq.ModeWorker, topo)
	if err != nil {
		return err
	}
	defer closeConn()

	w, err := a.NewWorker(gw, app.WorkerOptions{
		Queues:      f.queues,
		Concurrency: f.concurrency,
		AckTimeout:  time.Duration(f.ackTimeout) * time.Second,
	})
	if err != nil {
		return err
	}

	if f.metricsAddr != "" {
		handler := api.NewHandler(api.Config{
			Info: api.WorkerInfo{
				App:         a.Name(),
				Version:     version,
				Queues:      w.Queues(),
				Concurrency: w.Concurrency(),
			},
			Tasks:    a.Tasks(),
			Broker:   gw,
			Gatherer: reg,
			Logger:   logger,
		})

		srv, err := api.Start(f.metricsAddr, handler.Routes(), logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer srv.Close()
	}

	logger.Info("starting courier worker",
		"app", a.Name(),
		"queues", w.Queues(),
		"concurrency", w.Concurrency(),
	)

	if err := w.Run(ctx); err != nil {
		return fmt.Errorf("worker: %w", err)
	}
	return nil
}

// exactArgs - cobra.ExactArgs с кодом завершения 2.
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError("%s: accepts %d arg(s), received %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}
