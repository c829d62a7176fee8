// Package store provides storage backends for Onboard.
//
// This file implements a Redis-backed store. Records are JSON values under
// namespaced keys; per-user stage creation order is kept in a list.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/entrylane/onboard/internal/models"
	"github.com/redis/go-redis/v9"
)

// Key prefixes for the Redis store namespace.
const (
	redisFlowKeyPrefix       = "onboard:flow:"
	redisFlowSetKey          = "onboard:flows"
	redisSubmissionKeyPrefix = "onboard:submission:"
	redisStageKeyPrefix      = "onboard:stage:"
	redisStageOrderKeyPrefix = "onboard:stages:"
	redisProfileKeyPrefix    = "onboard:profile:"

	// DefaultRedisTimeout bounds each Redis round trip.
	DefaultRedisTimeout = 5 * time.Second
)

type RedisStore struct {
	client redis.UniversalClient
}

// NewRedisStore creates a new Redis store based on provided options.
func NewRedisStore(opts ...Option) (*RedisStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewRedisStore invoked", "addr", cfg.RedisAddr)

	if cfg.RedisAddr == "" {
		slog.Error("RedisStore address not set")
		return nil, fmt.Errorf("redis address not set")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), DefaultRedisTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		slog.Error("Redis ping failed", "error", err, "addr", cfg.RedisAddr)
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	slog.Debug("Redis ping successful", "addr", cfg.RedisAddr)

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), DefaultRedisTimeout)
}

func (s *RedisStore) getJSON(key string, out interface{}) (bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	raw, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s failed: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("redis decode %s failed: %w", key, err)
	}
	return true, nil
}

func (s *RedisStore) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("redis encode %s failed: %w", key, err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s failed: %w", key, err)
	}
	return nil
}

// GetSubmission retrieves the submission record for (userID, flow).
func (s *RedisStore) GetSubmission(userID, flow string) (*models.SubmissionRecord, error) {
	var rec models.SubmissionRecord
	found, err := s.getJSON(redisSubmissionKeyPrefix+userID+":"+flow, &rec)
	if err != nil {
		slog.Error("RedisStore GetSubmission failed", "error", err, "userID", userID, "flow", flow)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// SaveSubmission upserts the full submission record.
func (s *RedisStore) SaveSubmission(rec models.SubmissionRecord) error {
	if err := s.setJSON(redisSubmissionKeyPrefix+rec.UserID+":"+rec.Flow, rec); err != nil {
		slog.Error("RedisStore SaveSubmission failed", "error", err, "userID", rec.UserID, "flow", rec.Flow)
		return err
	}
	slog.Debug("RedisStore SaveSubmission succeeded", "userID", rec.UserID, "flow", rec.Flow, "status", rec.Status)
	return nil
}

// SaveSubmissionData upserts answer data preserving the stored status.
func (s *RedisStore) SaveSubmissionData(userID, flow string, data models.AnswerMap) error {
	rec, err := s.GetSubmission(userID, flow)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &models.SubmissionRecord{UserID: userID, Flow: flow, Status: models.SubmissionStatusInProgress}
	}
	rec.Data = data.Clone()
	rec.UpdatedAt = time.Now()
	return s.SaveSubmission(*rec)
}

func redisStageKey(userID string, stageID int) string {
	return redisStageKeyPrefix + userID + ":" + strconv.Itoa(stageID)
}

// GetStageProgress retrieves the stage record for (userID, stageID).
func (s *RedisStore) GetStageProgress(userID string, stageID int) (*models.StageProgressRecord, error) {
	var rec models.StageProgressRecord
	found, err := s.getJSON(redisStageKey(userID, stageID), &rec)
	if err != nil {
		slog.Error("RedisStore GetStageProgress failed", "error", err, "userID", userID, "stageID", stageID)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &rec, nil
}

// ListStageProgress retrieves all stage records for a user in creation order.
func (s *RedisStore) ListStageProgress(userID string) ([]models.StageProgressRecord, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	ids, err := s.client.LRange(ctx, redisStageOrderKeyPrefix+userID, 0, -1).Result()
	if err != nil {
		slog.Error("RedisStore ListStageProgress failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}

	var records []models.StageProgressRecord
	for _, raw := range ids {
		stageID, err := strconv.Atoi(raw)
		if err != nil {
			slog.Error("RedisStore ListStageProgress bad stage id", "raw", raw, "userID", userID)
			continue
		}
		rec, err := s.GetStageProgress(userID, stageID)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// SaveStageProgress upserts a stage record by (userID, stageID).
func (s *RedisStore) SaveStageProgress(rec models.StageProgressRecord) error {
	existing, err := s.GetStageProgress(rec.UserID, rec.StageID)
	if err != nil {
		return err
	}
	if existing == nil {
		_, err := s.InsertStageIfAbsent(rec)
		return err
	}
	rec.CreatedAt = existing.CreatedAt
	if err := s.setJSON(redisStageKey(rec.UserID, rec.StageID), rec); err != nil {
		slog.Error("RedisStore SaveStageProgress failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return err
	}
	slog.Debug("RedisStore SaveStageProgress succeeded", "userID", rec.UserID, "stageID", rec.StageID, "status", rec.Status)
	return nil
}

// InsertStageIfAbsent inserts unless a record for (userID, stageID) exists.
// SETNX makes the check-and-create atomic across concurrent callers.
func (s *RedisStore) InsertStageIfAbsent(rec models.StageProgressRecord) (bool, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("redis encode stage failed: %w", err)
	}
	ctx, cancel := s.ctx()
	defer cancel()
	created, err := s.client.SetNX(ctx, redisStageKey(rec.UserID, rec.StageID), raw, 0).Result()
	if err != nil {
		slog.Error("RedisStore InsertStageIfAbsent failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	if created {
		if err := s.client.RPush(ctx, redisStageOrderKeyPrefix+rec.UserID, strconv.Itoa(rec.StageID)).Err(); err != nil {
			slog.Error("RedisStore InsertStageIfAbsent order push failed", "error", err, "userID", rec.UserID, "stageID", rec.StageID)
			return true, fmt.Errorf("redis rpush failed: %w", err)
		}
	}
	slog.Debug("RedisStore InsertStageIfAbsent done", "userID", rec.UserID, "stageID", rec.StageID, "inserted", created)
	return created, nil
}

// GetFlowSections retrieves the stored sections of a flow.
func (s *RedisStore) GetFlowSections(flow string) ([]models.Section, error) {
	var sections []models.Section
	found, err := s.getJSON(redisFlowKeyPrefix+flow, &sections)
	if err != nil {
		slog.Error("RedisStore GetFlowSections failed", "error", err, "flow", flow)
		return nil, err
	}
	if !found {
		return nil, models.ErrUnknownFlow
	}
	return sections, nil
}

// SaveFlowSections replaces the stored sections of an existing flow.
func (s *RedisStore) SaveFlowSections(flow string, sections []models.Section) error {
	ctx, cancel := s.ctx()
	defer cancel()
	member, err := s.client.SIsMember(ctx, redisFlowSetKey, flow).Result()
	if err != nil {
		return fmt.Errorf("redis sismember failed: %w", err)
	}
	if !member {
		return models.ErrUnknownFlow
	}
	if sections == nil {
		sections = []models.Section{}
	}
	if err := s.setJSON(redisFlowKeyPrefix+flow, sections); err != nil {
		slog.Error("RedisStore SaveFlowSections failed", "error", err, "flow", flow)
		return err
	}
	slog.Debug("RedisStore SaveFlowSections succeeded", "flow", flow, "sections", len(sections))
	return nil
}

// ListFlows returns the names of all flows.
func (s *RedisStore) ListFlows() ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()
	names, err := s.client.SMembers(ctx, redisFlowSetKey).Result()
	if err != nil {
		slog.Error("RedisStore ListFlows failed", "error", err)
		return nil, fmt.Errorf("redis smembers failed: %w", err)
	}
	return names, nil
}

// CreateFlow creates an empty flow.
func (s *RedisStore) CreateFlow(name string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	added, err := s.client.SAdd(ctx, redisFlowSetKey, name).Result()
	if err != nil {
		slog.Error("RedisStore CreateFlow failed", "error", err, "flow", name)
		return fmt.Errorf("redis sadd failed: %w", err)
	}
	if added == 0 {
		return models.ErrFlowExists
	}
	if err := s.setJSON(redisFlowKeyPrefix+name, []models.Section{}); err != nil {
		return err
	}
	slog.Debug("RedisStore CreateFlow succeeded", "flow", name)
	return nil
}

// DeleteFlow removes a flow and its definition.
func (s *RedisStore) DeleteFlow(name string) error {
	ctx, cancel := s.ctx()
	defer cancel()
	if err := s.client.SRem(ctx, redisFlowSetKey, name).Err(); err != nil {
		slog.Error("RedisStore DeleteFlow failed", "error", err, "flow", name)
		return fmt.Errorf("redis srem failed: %w", err)
	}
	if err := s.client.Del(ctx, redisFlowKeyPrefix+name).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	slog.Debug("RedisStore DeleteFlow succeeded", "flow", name)
	return nil
}

// GetProfile retrieves the profile for userID.
func (s *RedisStore) GetProfile(userID string) (*models.UserProfile, error) {
	var p models.UserProfile
	found, err := s.getJSON(redisProfileKeyPrefix+userID, &p)
	if err != nil {
		slog.Error("RedisStore GetProfile failed", "error", err, "userID", userID)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &p, nil
}

// SaveProfile upserts a profile by userID.
func (s *RedisStore) SaveProfile(p models.UserProfile) error {
	if err := s.setJSON(redisProfileKeyPrefix+p.UserID, p); err != nil {
		slog.Error("RedisStore SaveProfile failed", "error", err, "userID", p.UserID)
		return err
	}
	slog.Debug("RedisStore SaveProfile succeeded", "userID", p.UserID)
	return nil
}

// Close closes the Redis client.
func (s *RedisStore) Close() error {
	slog.Debug("Closing Redis client")
	return s.client.Close()
}

// Compile-time check that RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
