package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dyike/AnalystCouncil/internal/processing"
	"github.com/dyike/AnalystCouncil/models"
)

type RedisOptions struct {
	Addr     string
	Password string
	Key      string
	MaxItems int
}

// Redis keeps the newest MaxItems reports as JSON in a capped list.
type Redis struct {
	client   *redis.Client
	key      string
	maxItems int64
}

func NewRedis(opts RedisOptions) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}
	return newRedis(client, opts), nil
}

func newRedis(client *redis.Client, opts RedisOptions) *Redis {
	key := opts.Key
	if key == "" {
		key = "council:reports"
	}
	maxItems := int64(opts.MaxItems)
	if maxItems <= 0 {
		maxItems = 500
	}
	return &Redis{client: client, key: key, maxItems: maxItems}
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) Append(ctx context.Context, report *models.CouncilReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, r.maxItems-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("push report to redis: %w", err)
	}
	return nil
}

func (r *Redis) Recent(ctx context.Context, limit int) ([]models.ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	items, err := r.client.LRange(ctx, r.key, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("read reports from redis: %w", err)
	}
	out := make([]models.ReportRecord, 0, len(items))
	for _, item := range items {
		var report models.CouncilReport
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			continue
		}
		out = append(out, Record(&report, processing.Stance(report.Chair.Analysis)))
	}
	return out, nil
}
