package aggregate

import (
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/store"
)

const (
	r1 = int64(model.ResolutionMinute) * 1000
	r5 = int64(model.ResolutionFiveMinute) * 1000
)

// Params bundles the retention windows every roll-up pass needs.
type Params struct {
	RawRetentionHours    uint32
	MinuteRetentionHours uint32
	RetentionDays        uint32
}

// RunPhaseABC rolls raw rows into 1-minute aggregates, 1-minute aggregates
// into 5-minute aggregates, and prunes everything past overall retention.
// Running it once at startup is the backfill pass: the bucket loops close
// whatever gap accumulated while the process was down.
func RunPhaseABC(s *store.Store, p Params, now time.Time) error {
	nowMs := now.UnixMilli()
	cutoffRaw := nowMs - int64(p.RawRetentionHours)*3_600_000
	cutoffMinute := nowMs - int64(p.MinuteRetentionHours)*3_600_000

	if err := phaseA(s, cutoffRaw); err != nil {
		return err
	}
	if err := phaseB(s, cutoffMinute); err != nil {
		return err
	}
	return RunRetention(s, p, now)
}

// phaseA walks closed 1-minute buckets of raw rows older than the raw
// retention cutoff, oldest first. Each bucket's aggregated insert and raw
// delete commit in one transaction, so a crash mid-pass never leaves a
// bucket half-rolled: either the raw rows are still there to be processed
// again, or they are gone and the aggregate exists.
func phaseA(s *store.Store, cutoffRaw int64) error {
	minTs, ok, err := s.MinRawTsBefore(cutoffRaw)
	if err != nil || !ok {
		return err
	}

	b := (minTs / r1) * r1
	for b+r1 <= cutoffRaw {
		rows, err := s.GetRawRange(b, b+r1)
		if err != nil {
			return err
		}
		var agg *model.AggregatedRow
		if len(rows) > 0 {
			row := AggregateRaw(b, rows)
			agg = &row
		}
		if err := s.RollupRawBucket(agg, b, b+r1); err != nil {
			return err
		}
		b += r1
	}
	return nil
}

// phaseB is phaseA over the aggregated table: 1-minute rows older than the
// minute retention cutoff fold into 5-minute buckets, deleting the sources.
func phaseB(s *store.Store, cutoffMinute int64) error {
	minTs, ok, err := s.MinAggregatedTsBefore(cutoffMinute, model.ResolutionMinute)
	if err != nil || !ok {
		return err
	}

	b := (minTs / r5) * r5
	for b+r5 <= cutoffMinute {
		rows, err := s.GetAggregatedRange(b, b+r5, model.ResolutionMinute)
		if err != nil {
			return err
		}
		var agg *model.AggregatedRow
		if len(rows) > 0 {
			row := AggregateRollup(b, rows)
			agg = &row
		}
		if err := s.RollupAggregatedBucket(agg, b, b+r5, model.ResolutionMinute); err != nil {
			return err
		}
		b += r5
	}
	return nil
}

// RunRetention prunes both tables past the overall retention window. It is
// the tail of every RunPhaseABC pass and also runs standalone when
// aggregation is disabled.
func RunRetention(s *store.Store, p Params, now time.Time) error {
	cutoff := now.UnixMilli() - int64(p.RetentionDays)*86_400_000
	if err := s.PruneRawBefore(cutoff); err != nil {
		return err
	}
	return s.PruneAggregatedBefore(cutoff)
}

// Scheduler runs the roll-up phases on a fixed interval and compaction on
// its own schedule (cron expression in local time, or a fixed interval),
// serialized through one select loop so the two never run concurrently.
type Scheduler struct {
	store  *store.Store
	params Params

	aggregationInterval time.Duration
	vacuumSchedule      cron.Schedule // nil means fixed-interval mode
	vacuumInterval      time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

func NewScheduler(s *store.Store, p Params, aggregationInterval time.Duration, vacuumSchedule cron.Schedule, vacuumInterval time.Duration) *Scheduler {
	return &Scheduler{
		store:               s,
		params:              p,
		aggregationInterval: aggregationInterval,
		vacuumSchedule:      vacuumSchedule,
		vacuumInterval:      vacuumInterval,
		done:                make(chan struct{}),
	}
}

// Start runs the backfill pass immediately, then launches the background
// loop.
func (sch *Scheduler) Start() {
	if err := RunPhaseABC(sch.store, sch.params, time.Now()); err != nil {
		log.Printf("aggregate: startup backfill failed: %v", err)
	}
	sch.wg.Add(1)
	go sch.run()
}

func (sch *Scheduler) Stop() {
	close(sch.done)
	sch.wg.Wait()
}

func (sch *Scheduler) nextVacuum(from time.Time) time.Time {
	if sch.vacuumSchedule != nil {
		return sch.vacuumSchedule.Next(from)
	}
	return from.Add(sch.vacuumInterval)
}

func (sch *Scheduler) run() {
	defer sch.wg.Done()

	aggTicker := time.NewTicker(sch.aggregationInterval)
	defer aggTicker.Stop()

	vacuumTimer := time.NewTimer(time.Until(sch.nextVacuum(time.Now())))
	defer vacuumTimer.Stop()

	for {
		select {
		case <-sch.done:
			return
		case <-aggTicker.C:
			if err := RunPhaseABC(sch.store, sch.params, time.Now()); err != nil {
				log.Printf("aggregate: aggregation tick failed: %v", err)
			}
		case <-vacuumTimer.C:
			if err := sch.store.Compact(); err != nil {
				log.Printf("aggregate: compaction failed: %v", err)
			}
			vacuumTimer.Reset(time.Until(sch.nextVacuum(time.Now())))
		}
	}
}

// PruneLoop is the retention-only fallback for deployments that turn
// aggregation off: nothing ever rolls up, but old rows still age out on the
// prune interval. The returned stop function blocks until the loop exits.
func PruneLoop(s *store.Store, p Params, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := RunRetention(s, p, time.Now()); err != nil {
					log.Printf("aggregate: retention prune failed: %v", err)
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
