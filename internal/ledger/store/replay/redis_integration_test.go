//go:build integration

package replay_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"copyright/internal/ledger/store/replay"
	"copyright/pkg/testutil/containers"
)

type RedisGuardSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	guard *replay.RedisGuard
}

func TestRedisGuardSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisGuardSuite))
}

func (s *RedisGuardSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.guard = replay.NewRedis(s.redis.Client, replay.WithRedisTTL(time.Second))
}

func (s *RedisGuardSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisGuardSuite) TestClaimReleaseExpire() {
	ctx := context.Background()

	ok, err := s.guard.Claim(ctx, "tx-1")
	s.Require().NoError(err)
	s.True(ok)

	ok, err = s.guard.Claim(ctx, "tx-1")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.guard.Release(ctx, "tx-1"))
	ok, err = s.guard.Claim(ctx, "tx-1")
	s.Require().NoError(err)
	s.True(ok)

	s.Eventually(func() bool {
		ok, err := s.guard.Claim(ctx, "tx-1")
		return err == nil && ok
	}, 3*time.Second, 100*time.Millisecond, "claim expires with the TTL")
}

func (s *RedisGuardSuite) TestConcurrentClaimsHaveOneWinner() {
	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, err := s.guard.Claim(context.Background(), "tx-race"); err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
}
