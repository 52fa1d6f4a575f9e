package models

import "time"

// RollupPeriod is the granularity of a persisted analytics rollup.
type RollupPeriod string

const (
	RollupDaily   RollupPeriod = "daily"
	RollupWeekly  RollupPeriod = "weekly"
	RollupMonthly RollupPeriod = "monthly"
)

// AnalyticsRollup is a persisted aggregate of execution history for one
// workflow and time bucket, maintained so historical reads stay O(1).
// Duration fields only cover executions with a recorded duration.
type AnalyticsRollup struct {
	ID          string       `json:"id"`
	WorkflowID  string       `json:"workflow_id" validate:"required"`
	Period      RollupPeriod `json:"period"      validate:"required"`
	BucketStart time.Time    `json:"bucket_start"`

	TotalCount     int64 `json:"total_count"`
	CompletedCount int64 `json:"completed_count"`
	FailedCount    int64 `json:"failed_count"`
	CancelledCount int64 `json:"cancelled_count"`

	DurationCount int64 `json:"duration_count"`
	DurationSumMs int64 `json:"duration_sum_ms"`
	DurationMinMs int64 `json:"duration_min_ms"`
	DurationMaxMs int64 `json:"duration_max_ms"`

	UpdatedAt time.Time `json:"updated_at"`
}

// BucketStartFor truncates t to the start of the bucket containing it.
func BucketStartFor(period RollupPeriod, t time.Time) time.Time {
	t = t.UTC()

	switch period {
	case RollupWeekly:
		day := t.Truncate(24 * time.Hour)
		// ISO weeks start on Monday.
		offset := (int(day.Weekday()) + 6) % 7

		return day.AddDate(0, 0, -offset)
	case RollupMonthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t.Truncate(24 * time.Hour)
	}
}
