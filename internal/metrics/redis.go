package metrics

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore implements Store over the metrics database of the shared
// Redis instance. The client is expected to have that database selected
// already; the cache manager hands one out.
type RedisStore struct {
	client redis.UniversalClient
	logger *zap.Logger
}

// NewRedisStore creates a RedisStore over an existing client.
func NewRedisStore(client redis.UniversalClient, logger *zap.Logger) *RedisStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{client: client, logger: logger}
}

// IncrementLabelStatusCount adds one to the <label>:<status> counter of a
// deployment.
func (s *RedisStore) IncrementLabelStatusCount(ctx context.Context, deploymentKey, label, status string) error {
	if !IsValidStatus(status) {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	if err := s.client.HIncrBy(ctx, LabelsKey(deploymentKey), statusField(label, status), 1).Err(); err != nil {
		return fmt.Errorf("failed to increment status count: %w", err)
	}
	return nil
}

// RecordUpdate marks a successful install and hands the client's active
// claim over from the previous label in one transaction.
func (s *RedisStore) RecordUpdate(ctx context.Context, currentDeploymentKey, currentLabel, previousDeploymentKey, previousLabel string) error {
	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, LabelsKey(currentDeploymentKey), statusField(currentLabel, statusActive), 1)
	pipe.HIncrBy(ctx, LabelsKey(currentDeploymentKey), statusField(currentLabel, StatusDeploymentSucceeded), 1)
	if previousDeploymentKey != "" && previousLabel != "" {
		pipe.HIncrBy(ctx, LabelsKey(previousDeploymentKey), statusField(previousLabel, statusActive), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record update: %w", err)
	}
	return nil
}

// UpdateActiveAppForClient points a client's active-label record at
// toLabel and shifts the active counters accordingly.
func (s *RedisStore) UpdateActiveAppForClient(ctx context.Context, deploymentKey, clientID, toLabel, fromLabel string) error {
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, ClientsKey(deploymentKey), clientID, toLabel)
	pipe.HIncrBy(ctx, LabelsKey(deploymentKey), statusField(toLabel, statusActive), 1)
	if fromLabel != "" {
		pipe.HIncrBy(ctx, LabelsKey(deploymentKey), statusField(fromLabel, statusActive), -1)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update active app for client: %w", err)
	}
	return nil
}

// GetCurrentActiveLabel returns the label a client last reported active,
// or "" when the client is unknown.
func (s *RedisStore) GetCurrentActiveLabel(ctx context.Context, deploymentKey, clientID string) (string, error) {
	label, err := s.client.HGet(ctx, ClientsKey(deploymentKey), clientID).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read active label: %w", err)
	}
	return label, nil
}

// RemoveDeploymentKeyClientActiveLabel deletes a client's active-label
// record. Removing an absent record is not an error.
func (s *RedisStore) RemoveDeploymentKeyClientActiveLabel(ctx context.Context, deploymentKey, clientID string) error {
	if err := s.client.HDel(ctx, ClientsKey(deploymentKey), clientID).Err(); err != nil {
		return fmt.Errorf("failed to remove active label: %w", err)
	}
	return nil
}

// GetMetrics reads the whole counter hash of a deployment, coercing
// values to integers.
func (s *RedisStore) GetMetrics(ctx context.Context, deploymentKey string) (map[string]int64, error) {
	fields, err := s.client.HGetAll(ctx, LabelsKey(deploymentKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read metrics: %w", err)
	}

	counters := make(map[string]int64, len(fields))
	for field, raw := range fields {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.logger.Warn("skipping non-numeric metrics field",
				zap.String("deployment_key", deploymentKey),
				zap.String("field", field))
			continue
		}
		counters[field] = n
	}
	return counters, nil
}

// ClearMetrics deletes the counter and active-label hashes of a
// deployment.
func (s *RedisStore) ClearMetrics(ctx context.Context, deploymentKey string) error {
	if err := s.client.Del(ctx, LabelsKey(deploymentKey), ClientsKey(deploymentKey)).Err(); err != nil {
		return fmt.Errorf("failed to clear metrics: %w", err)
	}
	return nil
}
