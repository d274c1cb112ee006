package recordmodel

import (
	"fmt"
	"time"
)

// BucketType is the calendar granularity a partition is named after (§3).
type BucketType string

const (
	BucketDaily   BucketType = "DAILY"
	BucketWeekly  BucketType = "WEEKLY"
	BucketMonthly BucketType = "MONTHLY"
)

// BucketName computes the calendar bucket label for a given epoch-ms
// timestamp and granularity, per §4.3's partition naming rules:
//
//	DAILY:   yyyy-MM-dd
//	WEEKLY:  yyyy-'W'ww (ISO week)
//	MONTHLY: yyyy-MM
func BucketName(bucketType BucketType, epochMillis int64) string {
	t := time.UnixMilli(epochMillis).UTC()
	switch bucketType {
	case BucketWeekly:
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case BucketMonthly:
		return t.Format("2006-01")
	default:
		return t.Format("2006-01-02")
	}
}

// PartitionName returns the on-disk/handle name for a bucket label, §4.3.
func PartitionName(bucket string) string {
	return "partition_" + bucket
}

// CurrentBucket is BucketName evaluated against the current wall clock.
func CurrentBucket(bucketType BucketType) string {
	return BucketName(bucketType, time.Now().UnixMilli())
}
