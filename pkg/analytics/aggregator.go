// Package analytics computes execution statistics per workflow: status
// counts, duration percentiles, top errors, and trend buckets over a date
// range, plus maintenance of the persisted rollups.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cascadehq/cascade/pkg/models"
	"github.com/cascadehq/cascade/pkg/persistence"
)

var ErrInvalidRange = errors.New("invalid analytics range")

// Granularity of the trend series.
type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityWeek  Granularity = "week"
	GranularityMonth Granularity = "month"
)

func (g Granularity) Valid() bool {
	switch g {
	case GranularityHour, GranularityDay, GranularityWeek, GranularityMonth:
		return true
	default:
		return false
	}
}

// Query selects what to aggregate. NodeID narrows the duration and error
// aggregates to one node's executions.
type Query struct {
	WorkflowID  string
	NodeID      string
	From        time.Time
	To          time.Time
	Granularity Granularity
}

// DurationStats covers only executions with a recorded duration; runs that
// never started still count toward the status totals.
type DurationStats struct {
	Count int64   `json:"count"`
	AvgMs float64 `json:"avg_ms"`
	MinMs int64   `json:"min_ms"`
	MaxMs int64   `json:"max_ms"`
	P95Ms int64   `json:"p95_ms"`
}

// ErrorCount is one normalized error message with its frequency.
type ErrorCount struct {
	Message string `json:"message"`
	Count   int64  `json:"count"`
}

// TrendBucket is one point of the trend series.
type TrendBucket struct {
	Start     time.Time `json:"start"`
	Total     int64     `json:"total"`
	Completed int64     `json:"completed"`
	Failed    int64     `json:"failed"`
}

// Report is the full aggregate for one query.
type Report struct {
	WorkflowID string    `json:"workflow_id"`
	From       time.Time `json:"from"`
	To         time.Time `json:"to"`

	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Cancelled int64 `json:"cancelled"`
	Running   int64 `json:"running"`

	SuccessRate float64       `json:"success_rate"`
	Duration    DurationStats `json:"duration"`
	TopErrors   []ErrorCount  `json:"top_errors"`
	Trend       []TrendBucket `json:"trend"`
}

const topErrorsLimit = 5

// executionPageSize bounds each history read while aggregating.
const executionPageSize = 500

type Aggregator struct {
	logger *slog.Logger
	store  persistence.Persistence
}

func NewAggregator(logger *slog.Logger, store persistence.Persistence) *Aggregator {
	return &Aggregator{
		logger: logger.With("module", "analytics"),
		store:  store,
	}
}

// Aggregate computes the report for one workflow over [From, To). An empty
// range degrades to zeroed aggregates, never an error.
func (a *Aggregator) Aggregate(ctx context.Context, query Query) (*Report, error) {
	if query.WorkflowID == "" {
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidRange)
	}

	if query.To.Before(query.From) {
		return nil, fmt.Errorf("%w: to precedes from", ErrInvalidRange)
	}

	if query.Granularity == "" {
		query.Granularity = GranularityDay
	}

	if !query.Granularity.Valid() {
		return nil, fmt.Errorf("%w: unknown granularity %q", ErrInvalidRange, query.Granularity)
	}

	executions, err := a.listRange(ctx, query)
	if err != nil {
		return nil, err
	}

	report := &Report{
		WorkflowID: query.WorkflowID,
		From:       query.From,
		To:         query.To,
		TopErrors:  []ErrorCount{},
		Trend:      []TrendBucket{},
	}

	var durations []int64

	errorCounts := make(map[string]int64)
	trend := make(map[time.Time]*TrendBucket)

	for _, execution := range executions {
		report.Total++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			report.Completed++
		case models.ExecutionStatusFailed:
			report.Failed++
		case models.ExecutionStatusCancelled:
			report.Cancelled++
		case models.ExecutionStatusRunning, models.ExecutionStatusPaused, models.ExecutionStatusPending:
			report.Running++
		}

		duration, ok, err := a.durationOf(ctx, execution, query.NodeID)
		if err != nil {
			return nil, err
		}

		if ok {
			durations = append(durations, duration)
		}

		if execution.Status == models.ExecutionStatusFailed && execution.Error != "" {
			errorCounts[normalizeError(execution.Error)]++
		}

		start := bucketStart(query.Granularity, execution.CreatedAt)

		bucket, exists := trend[start]
		if !exists {
			bucket = &TrendBucket{Start: start}
			trend[start] = bucket
		}

		bucket.Total++

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			bucket.Completed++
		case models.ExecutionStatusFailed:
			bucket.Failed++
		}
	}

	finished := report.Completed + report.Failed
	if finished > 0 {
		report.SuccessRate = float64(report.Completed) / float64(finished)
	}

	report.Duration = durationStats(durations)
	report.TopErrors = topErrors(errorCounts, topErrorsLimit)
	report.Trend = sortedTrend(trend)

	return report, nil
}

// durationOf picks the execution duration, or the node's duration when the
// query is narrowed to one node. The boolean is false for null durations,
// which stay in status totals but out of the numeric aggregates.
func (a *Aggregator) durationOf(ctx context.Context, execution *models.WorkflowExecution, nodeID string) (int64, bool, error) {
	if nodeID == "" {
		if execution.DurationMs == nil {
			return 0, false, nil
		}

		return *execution.DurationMs, true, nil
	}

	nodeExecutions, err := a.store.ExecutionRepository().NodeExecutions(ctx, execution.ID)
	if err != nil {
		return 0, false, err
	}

	for _, nodeExecution := range nodeExecutions {
		if nodeExecution.NodeID != nodeID {
			continue
		}

		if nodeExecution.DurationMs == nil {
			return 0, false, nil
		}

		return *nodeExecution.DurationMs, true, nil
	}

	return 0, false, nil
}

func (a *Aggregator) listRange(ctx context.Context, query Query) ([]*models.WorkflowExecution, error) {
	var all []*models.WorkflowExecution

	offset := 0

	for {
		page, err := a.store.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{
			WorkflowID: query.WorkflowID,
			From:       &query.From,
			To:         &query.To,
			Limit:      executionPageSize,
			Offset:     offset,
		})
		if err != nil {
			return nil, err
		}

		all = append(all, page...)

		if len(page) < executionPageSize {
			return all, nil
		}

		offset += executionPageSize
	}
}

func durationStats(durations []int64) DurationStats {
	stats := DurationStats{Count: int64(len(durations))}
	if len(durations) == 0 {
		return stats
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	var sum int64
	for _, duration := range durations {
		sum += duration
	}

	stats.AvgMs = float64(sum) / float64(len(durations))
	stats.MinMs = durations[0]
	stats.MaxMs = durations[len(durations)-1]
	stats.P95Ms = percentile(durations, 95)

	return stats
}

// percentile uses nearest-rank on the sorted input.
func percentile(sorted []int64, p int) int64 {
	rank := (len(sorted)*p + 99) / 100
	if rank < 1 {
		rank = 1
	}

	if rank > len(sorted) {
		rank = len(sorted)
	}

	return sorted[rank-1]
}

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numberPattern = regexp.MustCompile(`\b\d+\b`)
)

// normalizeError collapses ids and numbers so the same failure groups
// under one message.
func normalizeError(message string) string {
	message = uuidPattern.ReplaceAllString(message, "<id>")
	message = numberPattern.ReplaceAllString(message, "<n>")

	return strings.TrimSpace(message)
}

func topErrors(counts map[string]int64, limit int) []ErrorCount {
	out := make([]ErrorCount, 0, len(counts))
	for message, count := range counts {
		out = append(out, ErrorCount{Message: message, Count: count})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}

		return out[i].Message < out[j].Message
	})

	if len(out) > limit {
		out = out[:limit]
	}

	return out
}

func bucketStart(granularity Granularity, t time.Time) time.Time {
	t = t.UTC()

	switch granularity {
	case GranularityHour:
		return t.Truncate(time.Hour)
	case GranularityWeek:
		return models.BucketStartFor(models.RollupWeekly, t)
	case GranularityMonth:
		return models.BucketStartFor(models.RollupMonthly, t)
	default:
		return t.Truncate(24 * time.Hour)
	}
}

func sortedTrend(trend map[time.Time]*TrendBucket) []TrendBucket {
	out := make([]TrendBucket, 0, len(trend))
	for _, bucket := range trend {
		out = append(out, *bucket)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })

	return out
}

// RecordTerminal folds one terminal execution into the daily, weekly, and
// monthly rollups. Called by the worker after completion or failure.
func (a *Aggregator) RecordTerminal(ctx context.Context, execution *models.WorkflowExecution) error {
	if !execution.Status.Terminal() {
		return fmt.Errorf("%w: execution %s is %s", ErrInvalidRange, execution.ID, execution.Status)
	}

	when := execution.CreatedAt
	if execution.CompletedAt != nil {
		when = *execution.CompletedAt
	} else if execution.FailedAt != nil {
		when = *execution.FailedAt
	}

	for _, period := range []models.RollupPeriod{models.RollupDaily, models.RollupWeekly, models.RollupMonthly} {
		rollup := &models.AnalyticsRollup{
			ID:          uuid.New().String(),
			WorkflowID:  execution.WorkflowID,
			Period:      period,
			BucketStart: models.BucketStartFor(period, when),
			TotalCount:  1,
			UpdatedAt:   time.Now().UTC(),
		}

		switch execution.Status {
		case models.ExecutionStatusCompleted:
			rollup.CompletedCount = 1
		case models.ExecutionStatusFailed:
			rollup.FailedCount = 1
		case models.ExecutionStatusCancelled:
			rollup.CancelledCount = 1
		}

		if execution.DurationMs != nil {
			rollup.DurationCount = 1
			rollup.DurationSumMs = *execution.DurationMs
			rollup.DurationMinMs = *execution.DurationMs
			rollup.DurationMaxMs = *execution.DurationMs
		}

		if err := a.store.RollupRepository().Upsert(ctx, rollup); err != nil {
			return err
		}
	}

	return nil
}
