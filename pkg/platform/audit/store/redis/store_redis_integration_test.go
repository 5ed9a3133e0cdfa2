//go:build integration

package redis_test

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "calibra/pkg/platform/audit"
	auditredis "calibra/pkg/platform/audit/store/redis"
	"calibra/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *auditredis.Store
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = auditredis.New(s.redis.Client)
}

func (s *RedisStoreSuite) SetupTest() {
	err := s.redis.FlushAll(context.Background())
	s.Require().NoError(err)
}

func (s *RedisStoreSuite) TestAppendAndListByMethod() {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	event := audit.Event{
		Category:       audit.CategoryCompliance,
		Timestamp:      now,
		Action:         audit.EventCalibrationComputed,
		MethodID:       "bm25_retrieval",
		Role:           "score_q",
		CertificateID:  "a1b2c3d4e5f60718",
		FormulaVersion: "choquet-v2",
		FinalScore:     0.8125,
		ActiveLayers:   []string{"BASE", "CHAIN", "UNIT", "META"},
	}
	s.Require().NoError(s.store.Append(ctx, event))

	got, err := s.store.ListByMethod(ctx, "bm25_retrieval")
	s.Require().NoError(err)
	s.Require().Len(got, 1)
	s.Equal(audit.EventCalibrationComputed, got[0].Action)
	s.Equal("a1b2c3d4e5f60718", got[0].CertificateID)
	s.InDelta(0.8125, got[0].FinalScore, 1e-9)
	s.Equal([]string{"BASE", "CHAIN", "UNIT", "META"}, got[0].ActiveLayers)
	s.True(now.Equal(got[0].Timestamp))
}

func (s *RedisStoreSuite) TestListRecentNewestFirst() {
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		event := audit.Event{
			Category:  audit.CategoryOperations,
			Timestamp: time.Now().UTC(),
			Action:    audit.EventBoundednessViolation,
			MethodID:  "semantic_chunker",
			RequestID: strconv.Itoa(i),
		}
		s.Require().NoError(s.store.Append(ctx, event))
	}

	got, err := s.store.ListRecent(ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(got, 2)
	s.Equal("3", got[0].RequestID)
	s.Equal("2", got[1].RequestID)
}

func (s *RedisStoreSuite) TestCapacityTrimsOldest() {
	ctx := context.Background()
	store := auditredis.New(s.redis.Client,
		auditredis.WithCapacity(3),
		auditredis.WithKeyPrefix("calibra:audit:capacity"),
	)

	for i := 0; i < 5; i++ {
		event := audit.Event{
			Category:  audit.CategoryOperations,
			Timestamp: time.Now().UTC(),
			Action:    audit.EventBoundednessViolation,
			MethodID:  "bm25_retrieval",
			RequestID: strconv.Itoa(i),
		}
		s.Require().NoError(store.Append(ctx, event))
	}

	got, err := store.ListRecent(ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(got, 3)

	// Justification: the rolling window keeps the newest events when it
	// overflows, matching the in-memory store's eviction.
	s.Equal("4", got[0].RequestID)
	s.Equal("3", got[1].RequestID)
	s.Equal("2", got[2].RequestID)
}

func (s *RedisStoreSuite) TestPrefixesIsolateStores() {
	ctx := context.Background()
	other := auditredis.New(s.redis.Client, auditredis.WithKeyPrefix("calibra:audit:other"))

	event := audit.Event{
		Category:  audit.CategoryCompliance,
		Timestamp: time.Now().UTC(),
		Action:    audit.EventCalibrationComputed,
		MethodID:  "bm25_retrieval",
	}
	s.Require().NoError(s.store.Append(ctx, event))

	got, err := other.ListByMethod(ctx, "bm25_retrieval")
	s.Require().NoError(err)
	s.Empty(got)
}

func (s *RedisStoreSuite) TestHealth() {
	s.NoError(s.store.Health(context.Background()))
}
