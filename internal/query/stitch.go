// Package query implements the history query stitcher: merging raw and
// aggregated resolutions into one ordered Snapshot series for a
// [from, to, resolution] request.
package query

import (
	"errors"
	"sort"

	"github.com/nodewatch/telemetryd/internal/model"
	"github.com/nodewatch/telemetryd/internal/store"
)

// ErrInvalidRange is returned when from >= to.
var ErrInvalidRange = errors.New("from must be less than to")

// History fetches raw rows above the raw retention cutoff and aggregated
// rows below it, downsamples the raw side when a coarser resolution was
// requested, and returns both stitched into one ascending series. The
// cutoff is exclusive on the aggregated side, so the two sources never
// produce duplicate timestamps.
func History(s *store.Store, fromMs, toMs int64, resolutionSecs int, rawRetentionHours uint32) ([]model.Snapshot, error) {
	if fromMs >= toMs {
		return nil, ErrInvalidRange
	}

	rawCutoff := toMs - int64(rawRetentionHours)*3_600_000

	var rawPart []model.Snapshot
	if toMs > rawCutoff {
		from := fromMs
		if rawCutoff > from {
			from = rawCutoff
		}
		rows, err := s.GetRawRange(from, toMs)
		if err != nil {
			return nil, err
		}
		rawPart = rows
	}
	if resolutionSecs > 1 {
		rawPart = downsampleByBucketFloor(rawPart, int64(resolutionSecs)*1000)
	}

	var aggPart []model.Snapshot
	if fromMs < rawCutoff {
		aggRes := model.ResolutionMinute
		if resolutionSecs >= int(model.ResolutionFiveMinute) {
			aggRes = model.ResolutionFiveMinute
		}
		to := toMs
		if rawCutoff < to {
			to = rawCutoff
		}
		rows, err := s.GetAggregatedRange(fromMs, to, aggRes)
		if err != nil {
			return nil, err
		}
		aggPart = make([]model.Snapshot, len(rows))
		for i, r := range rows {
			aggPart[i] = r.ToSnapshot()
		}
	}

	out := make([]model.Snapshot, 0, len(aggPart)+len(rawPart))
	out = append(out, aggPart...)
	out = append(out, rawPart...)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// downsampleByBucketFloor keeps the last sample observed in each bucket.
// Callers get representative samples, not averages.
func downsampleByBucketFloor(rows []model.Snapshot, bucketMs int64) []model.Snapshot {
	if len(rows) == 0 {
		return rows
	}
	order := make([]int64, 0)
	buckets := make(map[int64]model.Snapshot)
	for _, r := range rows {
		b := (r.Timestamp / bucketMs) * bucketMs
		if _, ok := buckets[b]; !ok {
			order = append(order, b)
		}
		buckets[b] = r // last observation in the bucket wins
	}
	out := make([]model.Snapshot, len(order))
	for i, b := range order {
		out[i] = buckets[b]
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out
}
