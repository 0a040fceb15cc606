// Command telemetryd runs the host telemetry daemon: it samples CPU, RAM,
// container, storage, network, and system-dynamic stats on an interval,
// broadcasts them live over WebSocket, persists them to SQLite, and rolls
// them up into 1-minute and 5-minute aggregates on a retention schedule.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/nodewatch/telemetryd/internal/aggregate"
	"github.com/nodewatch/telemetryd/internal/broadcast"
	"github.com/nodewatch/telemetryd/internal/config"
	"github.com/nodewatch/telemetryd/internal/httpapi"
	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/probe"
	"github.com/nodewatch/telemetryd/internal/sampler"
	"github.com/nodewatch/telemetryd/internal/store"
)

const daemonVersion = "1.0.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "telemetryd",
		Short: "Host telemetry sampler, live broadcaster, and history store",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the daemon version and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("telemetryd version %s\n", daemonVersion)
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry daemon (default when no subcommand is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}
	rootCmd.AddCommand(serveCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func serve() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := store.Open(cfg.Database.Path, int(cfg.Database.MaxPoolSize))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	info, err := probe.CollectSystemInfo()
	if err != nil {
		log.Printf("telemetryd: system info probe degraded: %v", err)
	}

	handle := probe.NewHandle(time.Duration(cfg.Publishing.CPUStatsFrequencyMs) * time.Millisecond)
	defer handle.Close()
	hub := broadcast.NewHub[model.Snapshot](int(cfg.Publishing.BroadcastCapacity))

	writer := store.NewWriter(s, info, 1024, int(cfg.Database.FlushRate), time.Duration(cfg.Database.FlushIntervalSecs)*time.Second)
	defer writer.Close()

	worker := sampler.New(handle, hub, writer, time.Duration(cfg.Monitoring.SampleIntervalMs)*time.Millisecond)
	worker.Start()
	defer worker.Stop()

	stopStatsLog := startStatsLog(writer, hub, time.Duration(cfg.Monitoring.StatsLogIntervalSecs)*time.Second)
	defer stopStatsLog()

	retention := aggregate.Params{
		RawRetentionHours:    cfg.Database.RawRetentionHours,
		MinuteRetentionHours: cfg.Database.MinuteRetentionHours,
		RetentionDays:        cfg.Database.RetentionDays,
	}

	if cfg.Database.EnableAggregation {
		var vacuumSchedule cron.Schedule
		if cfg.Database.VacuumSchedule != "" {
			vacuumSchedule, err = config.ParseCron(cfg.Database.VacuumSchedule)
			if err != nil {
				return fmt.Errorf("parse vacuum schedule: %w", err)
			}
		}

		scheduler := aggregate.NewScheduler(
			s,
			retention,
			time.Duration(cfg.Database.AggregationIntervalSecs)*time.Second,
			vacuumSchedule,
			time.Duration(cfg.Database.VacuumIntervalSecs)*time.Second,
		)
		scheduler.Start()
		defer scheduler.Stop()
	} else {
		// No roll-ups, but old rows still have to age out.
		stopPrune := aggregate.PruneLoop(s, retention, time.Duration(cfg.Database.PruneIntervalSecs)*time.Second)
		defer stopPrune()
	}

	srv := httpapi.NewServer(cfg, s, hub, handle, info)
	router := httpapi.NewRouter(srv)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router,
	}

	serveErrCh := make(chan error, 1)
	go func() {
		log.Printf("telemetryd: listening on %s", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	if config.RunningInContainer() {
		log.Printf("telemetryd: running in a container, no signal handler installed")
		return <-serveErrCh
	}

	sigCh := make(chan os.Signal, 1)
	notifyShutdown(sigCh)

	select {
	case err := <-serveErrCh:
		return err
	case sig := <-sigCh:
		log.Printf("telemetryd: received %s, shutting down", sig)
	}
	signal.Stop(sigCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpSrv.Shutdown(ctx)
}

// startStatsLog periodically reports pipeline throughput: snapshots
// committed so far and current live subscriber count.
func startStatsLog(writer *store.Writer, hub *broadcast.Hub[model.Snapshot], interval time.Duration) (stop func()) {
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				log.Printf("telemetryd: %d snapshots saved, %d live subscribers", writer.SavedTotal(), hub.Count())
			}
		}
	}()
	return func() { close(done) }
}
