package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"quiz-engine/internal/domain"
)

// DefaultResultCap bounds how many results are kept per user.
const DefaultResultCap = 50

// ResultStore keeps each user's most recent results as a capped list:
//
//	LPUSH quiz:results:{userID} {json}
//	LTRIM quiz:results:{userID} 0 cap-1
//
// Dashboards are cached per limit in HSET quiz:dashboard:{userID} {limit} {json} and dropped on
// every write.
type ResultStore struct {
	client       *redis.Client
	cap          int
	dashboardTTL time.Duration
}

func NewResultStore(client *redis.Client, cap int, dashboardTTL time.Duration) *ResultStore {
	if cap <= 0 {
		cap = DefaultResultCap
	}
	return &ResultStore{client: client, cap: cap, dashboardTTL: dashboardTTL}
}

func (s *ResultStore) SaveResult(ctx context.Context, result domain.Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.resultsKey(result.UserID), payload)
	pipe.LTrim(ctx, s.resultsKey(result.UserID), 0, int64(s.cap-1))
	pipe.Del(ctx, s.dashboardKey(result.UserID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save result %s: %w", result.ID, err)
	}
	return nil
}

// ListResults returns up to limit results for userID, newest first; limit <= 0 returns all kept.
func (s *ResultStore) ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	raw, err := s.client.LRange(ctx, s.resultsKey(userID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list results for %s: %w", userID, err)
	}
	results := make([]domain.Result, 0, len(raw))
	for _, item := range raw {
		var result domain.Result
		if err := json.Unmarshal([]byte(item), &result); err != nil {
			return nil, fmt.Errorf("decode result for %s: %w", userID, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *ResultStore) GetDashboard(ctx context.Context, userID string, limit int) (domain.Dashboard, bool) {
	payload, err := s.client.HGet(ctx, s.dashboardKey(userID), strconv.Itoa(limit)).Bytes()
	if err != nil {
		return domain.Dashboard{}, false
	}
	var dashboard domain.Dashboard
	if err := json.Unmarshal(payload, &dashboard); err != nil {
		return domain.Dashboard{}, false
	}
	return dashboard, true
}

func (s *ResultStore) PutDashboard(ctx context.Context, limit int, dashboard domain.Dashboard) {
	payload, err := json.Marshal(dashboard)
	if err != nil {
		return
	}
	key := s.dashboardKey(dashboard.UserID)
	pipe := s.client.Pipeline()
	pipe.HSet(ctx, key, strconv.Itoa(limit), payload)
	if s.dashboardTTL > 0 {
		pipe.Expire(ctx, key, s.dashboardTTL)
	}
	_, _ = pipe.Exec(ctx)
}

func (s *ResultStore) resultsKey(userID string) string {
	return "quiz:results:" + userID
}

func (s *ResultStore) dashboardKey(userID string) string {
	return "quiz:dashboard:" + userID
}
