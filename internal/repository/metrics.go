package repository

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	metricsPathsKey     = "metrics:paths"
	metricsTotalKey     = "metrics:global:total"
	metricsLatencyKey   = "metrics:global:latency_sum"
	metricsStartKey     = "metrics:server:start_time"
	metricsWatchlistKey = "metrics:watchlist"

	dayLayout  = "2006-01-02"
	hourLayout = "2006-01-02-15"
)

// Metrics stores API and watchlist counters in Redis
type Metrics struct {
	client *redis.Client
	now    func() time.Time
}

// APIStats represents statistics for an API endpoint
type APIStats struct {
	Path         string  `json:"path"`
	TotalCalls   int64   `json:"total_calls"`
	SuccessCalls int64   `json:"success_calls"`
	ErrorCalls   int64   `json:"error_calls"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`
	CacheHits    int64   `json:"cache_hits"`
	CacheMisses  int64   `json:"cache_misses"`
}

// DailyStats represents daily API statistics
type DailyStats struct {
	Date       string  `json:"date"`
	TotalCalls int64   `json:"total_calls"`
	AvgLatency float64 `json:"avg_latency"`
}

// WatchlistStats counts watchlist mutations by outcome
type WatchlistStats struct {
	Adds          int64 `json:"adds"`
	Removes       int64 `json:"removes"`
	FailedAdds    int64 `json:"failed_adds"`
	FailedRemoves int64 `json:"failed_removes"`
}

// OverallStats represents overall system statistics
type OverallStats struct {
	TotalAPICalls int64          `json:"total_api_calls"`
	TodayAPICalls int64          `json:"today_api_calls"`
	AvgLatencyMs  float64        `json:"avg_latency_ms"`
	CacheHitRate  float64        `json:"cache_hit_rate"`
	ErrorRate     float64        `json:"error_rate"`
	TopEndpoints  []APIStats     `json:"top_endpoints"`
	DailyTrend    []DailyStats   `json:"daily_trend"`
	Watchlist     WatchlistStats `json:"watchlist"`
	Uptime        int64          `json:"uptime_seconds"`
}

// NewMetrics creates a Metrics on an existing client
func NewMetrics(client *redis.Client) *Metrics {
	return &Metrics{client: client, now: time.Now}
}

func pathKey(path string) string {
	return "metrics:path:" + path
}

// RecordAPICall records one served request
func (m *Metrics) RecordAPICall(ctx context.Context, path string, statusCode int, latencyMs float64, cacheHit bool) error {
	now := m.now()
	key := pathKey(path)
	dailyKey := "metrics:daily:" + now.Format(dayLayout)
	hourlyKey := "metrics:hourly:" + now.Format(hourLayout)

	outcome := "error"
	if statusCode >= 200 && statusCode < 400 {
		outcome = "success"
	}
	cacheField := "cache_misses"
	if cacheHit {
		cacheField = "cache_hits"
	}

	_, err := m.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, "total", 1)
		pipe.HIncrBy(ctx, key, outcome, 1)
		pipe.HIncrBy(ctx, key, cacheField, 1)
		pipe.HIncrByFloat(ctx, key, "latency_sum", latencyMs)

		pipe.HIncrBy(ctx, dailyKey, "total", 1)
		pipe.HIncrByFloat(ctx, dailyKey, "latency_sum", latencyMs)
		pipe.Expire(ctx, dailyKey, 30*24*time.Hour)

		pipe.HIncrBy(ctx, hourlyKey, "total", 1)
		pipe.Expire(ctx, hourlyKey, 48*time.Hour)

		pipe.Incr(ctx, metricsTotalKey)
		pipe.IncrByFloat(ctx, metricsLatencyKey, latencyMs)
		pipe.SAdd(ctx, metricsPathsKey, path)
		return nil
	})
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Failed to record metrics")
		return err
	}

	m.raiseMax(ctx, key, latencyMs)
	return nil
}

// raiseMax keeps the highest latency seen for a path
func (m *Metrics) raiseMax(ctx context.Context, key string, latencyMs float64) {
	cur, err := m.client.HGet(ctx, key, "max_latency").Float64()
	if err != nil && err != redis.Nil {
		return
	}
	if latencyMs > cur {
		m.client.HSet(ctx, key, "max_latency", latencyMs)
	}
}

// RecordWatchlistMutation counts one watchlist add or remove
func (m *Metrics) RecordWatchlistMutation(ctx context.Context, op string, ok bool) {
	field := op
	if !ok {
		field = "failed_" + op
	}
	if err := m.client.HIncrBy(ctx, metricsWatchlistKey, field, 1).Err(); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("Failed to record watchlist metric")
	}
}

// GetAPIStats gets statistics for a specific API path
func (m *Metrics) GetAPIStats(ctx context.Context, path string) (*APIStats, error) {
	h, err := m.client.HGetAll(ctx, pathKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall error: %w", err)
	}

	stats := &APIStats{
		Path:         path,
		TotalCalls:   hashInt(h, "total"),
		SuccessCalls: hashInt(h, "success"),
		ErrorCalls:   hashInt(h, "error"),
		MaxLatencyMs: hashFloat(h, "max_latency"),
		CacheHits:    hashInt(h, "cache_hits"),
		CacheMisses:  hashInt(h, "cache_misses"),
	}
	if stats.TotalCalls > 0 {
		stats.AvgLatencyMs = hashFloat(h, "latency_sum") / float64(stats.TotalCalls)
	}
	return stats, nil
}

// GetOverallStats gets overall system statistics
func (m *Metrics) GetOverallStats(ctx context.Context) (*OverallStats, error) {
	stats := &OverallStats{}

	total, err := m.client.Get(ctx, metricsTotalKey).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}
	stats.TotalAPICalls = total
	if total > 0 {
		latencySum, _ := m.client.Get(ctx, metricsLatencyKey).Float64()
		stats.AvgLatencyMs = latencySum / float64(total)
	}

	stats.TodayAPICalls, _ = m.client.HGet(ctx, "metrics:daily:"+m.now().Format(dayLayout), "total").Int64()

	paths, err := m.client.SMembers(ctx, metricsPathsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers error: %w", err)
	}

	var endpoints []APIStats
	var hits, misses, failures int64
	for _, path := range paths {
		s, err := m.GetAPIStats(ctx, path)
		if err != nil || s.TotalCalls == 0 {
			continue
		}
		endpoints = append(endpoints, *s)
		hits += s.CacheHits
		misses += s.CacheMisses
		failures += s.ErrorCalls
	}
	sort.Slice(endpoints, func(i, j int) bool {
		return endpoints[i].TotalCalls > endpoints[j].TotalCalls
	})
	if len(endpoints) > 10 {
		endpoints = endpoints[:10]
	}
	stats.TopEndpoints = endpoints

	if hits+misses > 0 {
		stats.CacheHitRate = float64(hits) / float64(hits+misses) * 100
	}
	if total > 0 {
		stats.ErrorRate = float64(failures) / float64(total) * 100
	}

	stats.DailyTrend = m.dailyTrend(ctx, 7)

	w, _ := m.client.HGetAll(ctx, metricsWatchlistKey).Result()
	stats.Watchlist = WatchlistStats{
		Adds:          hashInt(w, "add"),
		Removes:       hashInt(w, "remove"),
		FailedAdds:    hashInt(w, "failed_add"),
		FailedRemoves: hashInt(w, "failed_remove"),
	}

	if start, err := m.client.Get(ctx, metricsStartKey).Int64(); err == nil && start > 0 {
		stats.Uptime = m.now().Unix() - start
	}
	return stats, nil
}

// dailyTrend returns one entry per day for the last n days, oldest first
func (m *Metrics) dailyTrend(ctx context.Context, n int) []DailyStats {
	trend := make([]DailyStats, 0, n)
	for i := n - 1; i >= 0; i-- {
		date := m.now().AddDate(0, 0, -i).Format(dayLayout)
		h, err := m.client.HGetAll(ctx, "metrics:daily:"+date).Result()
		if err != nil {
			continue
		}
		d := DailyStats{Date: date, TotalCalls: hashInt(h, "total")}
		if d.TotalCalls > 0 {
			d.AvgLatency = hashFloat(h, "latency_sum") / float64(d.TotalCalls)
		}
		trend = append(trend, d)
	}
	return trend
}

// RecordServerStart records server start time
func (m *Metrics) RecordServerStart(ctx context.Context) {
	if err := m.client.Set(ctx, metricsStartKey, m.now().Unix(), 0).Err(); err != nil {
		log.Warn().Err(err).Msg("Failed to record server start")
	}
}

// ResetMetrics deletes every metrics key
func (m *Metrics) ResetMetrics(ctx context.Context) (int64, error) {
	return deleteMatching(ctx, m.client, "metrics:*")
}

func hashInt(h map[string]string, field string) int64 {
	v, _ := strconv.ParseInt(h[field], 10, 64)
	return v
}

func hashFloat(h map[string]string, field string) float64 {
	v, _ := strconv.ParseFloat(h[field], 64)
	return v
}
