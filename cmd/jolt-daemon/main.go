// Command jolt-daemon is the per-host collector: it owns the Sensor
// Provider, persists samples to the history store, serves the IPC
// protocol to subscribed clients, and sweeps old rows on a timer.
//
// This composition root replaces the teacher's cmd/power-monitor-daemon,
// keeping its overall shape (flock PID file, topic logger to a file,
// signal-driven shutdown, a cleanup ticker alongside the collection loop)
// while splitting that single select loop into the independent sampler,
// IPC acceptor, and retention tasks spec.md §5 calls for.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/cptspacemanspiff/jolt/internal/analyzer"
	"github.com/cptspacemanspiff/jolt/internal/client"
	"github.com/cptspacemanspiff/jolt/internal/config"
	"github.com/cptspacemanspiff/jolt/internal/forecast"
	"github.com/cptspacemanspiff/jolt/internal/ipcserver"
	"github.com/cptspacemanspiff/jolt/internal/logging"
	"github.com/cptspacemanspiff/jolt/internal/metrics"
	"github.com/cptspacemanspiff/jolt/internal/process"
	"github.com/cptspacemanspiff/jolt/internal/protocol"
	"github.com/cptspacemanspiff/jolt/internal/sampler"
	"github.com/cptspacemanspiff/jolt/internal/sensor"
	"github.com/cptspacemanspiff/jolt/internal/store"
	"github.com/cptspacemanspiff/jolt/internal/supervisor"
	"github.com/cptspacemanspiff/jolt/internal/wake"
)

const defaultConfigPath = "/etc/jolt/daemon.toml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: jolt-daemon <start|stop|status> [flags]")
		return 1
	}

	switch args[0] {
	case "start":
		return runStart(args[1:])
	case "stop":
		return runStop(args[1:])
	case "status":
		return runStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", args[0])
		return 1
	}
}

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	foreground := fs.Bool("foreground", false, "run in the foreground instead of daemonizing")
	configPath := fs.String("config", "", "path to daemon.toml")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	if !*foreground {
		parent, err := supervisor.Daemonize(cfg.Paths.LogPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "daemonize:", err)
			return 1
		}
		if parent {
			return 0
		}
	}

	return runDaemon(cfg)
}

func runStop(args []string) int {
	fs := flag.NewFlagSet("stop", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to daemon.toml")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	c, err := client.Connect(cfg.Paths.SocketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	if err := c.Shutdown(); err != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", err)
		return 1
	}
	return 0
}

func runStatus(args []string) int {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to daemon.toml")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		return 1
	}

	c, err := client.Connect(cfg.Paths.SocketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "daemon not running")
		return 1
	}
	defer c.Close()

	status, err := c.GetStatus()
	if err != nil {
		fmt.Fprintln(os.Stderr, "get status:", err)
		return 1
	}
	if !protocol.SupportedBy(status, protocol.ProtocolVersion) {
		fmt.Fprintf(os.Stderr, "daemon protocol version %d outside this client's supported range\n", status.ProtocolVersion)
		return 3
	}

	fmt.Printf("protocol_version: %d (min supported %d)\n", status.ProtocolVersion, status.MinSupportedVersion)
	fmt.Printf("uptime: %s\n", time.Duration(status.Uptime)*time.Second)
	fmt.Printf("broadcast_interval_ms: %d\n", status.BroadcastIntervalMS)
	fmt.Printf("subscribers: %d\n", status.SubscriberCount)
	fmt.Printf("samples_inserted: %d\n", status.SamplesInserted)
	fmt.Printf("insertion_failures: %d\n", status.InsertionFailures)
	fmt.Printf("store_bytes: %d\n", status.StoreBytes)
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = defaultConfigPath
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return config.NormalizeAndValidate(config.DefaultConfig())
	}
	return config.Load(path)
}

// runDaemon wires every component named in spec.md §4 together and blocks
// until shutdown, returning the process exit code (spec §6: 0 success, 1
// startup failure, 2 another instance holds the lock).
func runDaemon(cfg *config.Config) int {
	for _, dir := range []string{
		filepath.Dir(cfg.Paths.SocketPath),
		filepath.Dir(cfg.Paths.PIDPath),
		filepath.Dir(cfg.Paths.LogPath),
		filepath.Dir(cfg.Paths.DBPath),
	} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			fmt.Fprintln(os.Stderr, "mkdir", dir, err)
			return 1
		}
	}

	logFile, err := os.OpenFile(cfg.Paths.LogPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open log file:", err)
		return 1
	}
	defer logFile.Close()
	logger := logging.New(logFile, slog.LevelInfo, []string{logging.TopicAll})

	lock, err := supervisor.AcquireLock(cfg.Paths.PIDPath)
	if err != nil {
		if errors.Is(err, supervisor.ErrAlreadyRunning) {
			logger.Error("another instance holds the lock", "path", cfg.Paths.PIDPath)
			return 2
		}
		logger.Error("acquire lock", "err", err)
		return 1
	}

	db, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		logger.Error("open store", "err", err, "topic", logging.TopicStore)
		lock.Release()
		return 1
	}
	dbHandle := store.NewHandle(db)

	sampleInterval := time.Duration(cfg.Sampling.SampleIntervalSecs) * time.Second
	an := analyzer.New(db, sampleInterval, cfg.Cycles.DesignCycleCeiling)
	fc := forecast.New(forecast.DefaultWindow)
	procs := process.New(10)
	reg := metrics.New()
	provider := sensor.DetectProvider()
	logger.Info("sensor provider selected", "provider", fmt.Sprintf("%T", provider), "topic", logging.TopicSensor)

	ctx, cancel := context.WithCancel(context.Background())

	smp := sampler.New(sampler.Options{
		Provider:   provider,
		DB:         dbHandle,
		Analyzer:   an,
		Forecaster: fc,
		Processes:  procs,
		Metrics:    reg,
		Logger:     logger,
		IntervalMS: int64(cfg.Sampling.BroadcastIntervalMs),
	})

	srv, err := ipcserver.Listen(ipcserver.Options{
		SocketPath:     cfg.Paths.SocketPath,
		DB:             dbHandle,
		Analyzer:       an,
		Sampler:        smp,
		Metrics:        reg,
		Logger:         logger,
		MaxSubscribers: cfg.Sampling.MaxSubscribers,
		QueueSize:      cfg.Sampling.SubscriberQueueSize,
		OnShutdown:     cancel,
	})
	if err != nil {
		logger.Error("listen", "err", err, "topic", logging.TopicIPC)
		dbHandle.Close()
		lock.Release()
		return 1
	}
	smp.SetBroadcaster(srv)

	wakeMon, err := wake.NewMonitor(logger)
	var wakeCh <-chan struct{}
	if err != nil {
		logger.Warn("wake monitor unavailable, running without sleep/resume signals", "err", err, "topic", logging.TopicWake)
	} else {
		defer wakeMon.Close()
		wakeCh = wakeMon.Wake()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		smp.Run(ctx, wakeCh)
	}()

	go func() {
		if err := srv.Serve(); err != nil {
			logger.Warn("ipc accept loop exited", "err", err, "topic", logging.TopicIPC)
		}
	}()

	if cfg.Retention.SweepIntervalMins > 0 {
		policy := store.RetentionPolicy{
			RawDays:      cfg.Retention.RawDays,
			HourlyDays:   cfg.Retention.HourlyDays,
			DailyDays:    cfg.Retention.DailyDays,
			SessionsDays: cfg.Retention.SessionsDays,
		}
		maxDatabaseBytes := int64(cfg.Retention.MaxDatabaseMB) * 1024 * 1024
		go supervisor.RetentionTicker(ctx, time.Duration(cfg.Retention.SweepIntervalMins)*time.Minute, func() {
			active := dbHandle.Get()
			res, err := active.ApplyRetention(time.Now(), policy)
			if err != nil {
				logger.Warn("retention sweep failed", "err", err, "topic", logging.TopicStore)
				return
			}
			freed := res.SamplesDeleted + res.HourlyDeleted + res.DailyDeleted + res.ProcessesDeleted + res.SessionsDeleted + res.CyclesDeleted
			reg.RetentionSweeps.Inc()
			reg.RetentionRowsFreed.Add(float64(freed))
			logger.Info("retention sweep complete", "rows_freed", freed, "topic", logging.TopicStore)

			stats, err := active.GetStats()
			if err != nil {
				logger.Warn("retention sweep: get stats failed", "err", err, "topic", logging.TopicStore)
				return
			}
			if maxDatabaseBytes <= 0 || stats.StoreBytes < maxDatabaseBytes {
				return
			}
			logger.Info("store exceeds configured ceiling, vacuuming", "store_bytes", stats.StoreBytes, "max_database_mb", cfg.Retention.MaxDatabaseMB, "topic", logging.TopicStore)
			if err := active.Vacuum(); err != nil {
				logger.Warn("retention sweep: vacuum failed", "err", err, "topic", logging.TopicStore)
				return
			}
			reg.RetentionVacuums.Inc()
			logger.Info("vacuum complete", "topic", logging.TopicStore)
		})
	}

	sup := supervisor.New(lock, cfg.Paths.SocketPath, logger)
	sup.Run(ctx, func() {
		cancel()
		srv.Close()
		<-done
		if err := an.Shutdown(); err != nil {
			logger.Warn("analyzer shutdown", "err", err, "topic", logging.TopicAnalyzer)
		}
		if err := dbHandle.Close(); err != nil {
			logger.Warn("close store", "err", err, "topic", logging.TopicStore)
		}
	})

	logger.Info("daemon stopped")
	return 0
}
