package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ds124wfegd/parking/internal/database"
	"github.com/ds124wfegd/parking/internal/entity"
)

const (
	monthlyPrefix = "parking:report:monthly:"
	generationKey = "parking:report:generation"
)

type ReportCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewReportCache(client *redis.Client, ttl time.Duration) *ReportCache {
	return &ReportCache{client: client, ttl: ttl}
}

var _ database.ReportCache = (*ReportCache)(nil)

func monthlyKey(generation int64, month string) string {
	return monthlyPrefix + strconv.FormatInt(generation, 10) + ":" + month
}

func (c *ReportCache) Generation(ctx context.Context) (int64, error) {
	generation, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return generation, err
}

func (c *ReportCache) GetMonthly(ctx context.Context, generation int64, month string) (*entity.MonthlyReport, bool, error) {
	data, err := c.client.Get(ctx, monthlyKey(generation, month)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report entity.MonthlyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

// SetMonthly writes under the caller's generation. A stale write lands on a
// key no reader asks for and expires with the ttl.
func (c *ReportCache) SetMonthly(ctx context.Context, generation int64, report *entity.MonthlyReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, monthlyKey(generation, report.Month), data, c.ttl).Err()
}

// Invalidate moves readers to a new generation, then drops the old months.
func (c *ReportCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, generationKey).Err(); err != nil {
		return err
	}

	iter := c.client.Scan(ctx, 0, monthlyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
