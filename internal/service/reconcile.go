package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/logger"
	"github.com/robcarmo/puppies-api/pkg/metrics"
)

// Sweeper 周期性补偿：feed 是发帖的派生投影，任何扇出失败都能
// 从 posts + 关注关系重推出来，所以这里的每一步都是幂等的，
// 错误只记日志与指标，从不上抛给用户。
type Sweeper struct {
	postRepo     repository.PostRepository
	feedRepo     repository.FeedRepository
	fanRepo      repository.FanRepository
	outboxRepo   repository.OutboxRepository
	dispatcher   *Dispatcher
	interactions *InteractionService

	interval     time.Duration
	lookBack     time.Duration
	stuckTimeout time.Duration
	pageSize     int
}

func NewSweeper(postRepo repository.PostRepository, feedRepo repository.FeedRepository,
	fanRepo repository.FanRepository, outboxRepo repository.OutboxRepository,
	dispatcher *Dispatcher, interactions *InteractionService,
	interval, lookBack, stuckTimeout time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if lookBack <= 0 {
		lookBack = 15 * time.Minute
	}
	if stuckTimeout <= 0 {
		stuckTimeout = 5 * time.Minute
	}
	return &Sweeper{postRepo: postRepo, feedRepo: feedRepo, fanRepo: fanRepo,
		outboxRepo: outboxRepo, dispatcher: dispatcher, interactions: interactions,
		interval: interval, lookBack: lookBack, stuckTimeout: stuckTimeout, pageSize: 500}
}

// Start 启动周期扫描；返回停止函数
func (s *Sweeper) Start() func(context.Context) error {
	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.RunOnce(context.Background())
			}
		}
	}()
	return func(ctx context.Context) error { close(stop); return nil }
}

// RunOnce 完整跑一轮全部补偿步骤
func (s *Sweeper) RunOnce(ctx context.Context) {
	if n, err := s.outboxRepo.ResetStuck(ctx, time.Now().Add(-s.stuckTimeout)); err != nil {
		logger.Error("sweep: reset stuck outbox failed", zap.Error(err))
	} else if n > 0 {
		logger.Info("sweep: reset stuck outbox", zap.Int64("count", n))
	}

	s.replanOrphanedEvents(ctx)
	s.requeueMissingDeliveries(ctx)

	if n, err := s.feedRepo.DeleteOrphans(ctx); err != nil {
		logger.Error("sweep: orphan purge failed", zap.Error(err))
	} else if n > 0 {
		metrics.SweepOrphansPurged.Add(float64(n))
		logger.Info("sweep: purged orphan feed entries", zap.Int64("count", n))
	}

	if _, err := s.interactions.ReconcileCounts(ctx); err != nil {
		logger.Error("sweep: counter reconcile failed", zap.Error(err))
	}
}

// replanOrphanedEvents 调度器在发帖后宕掉会留下无策略的 pending 事件，补上决策
func (s *Sweeper) replanOrphanedEvents(ctx context.Context) {
	events, err := s.outboxRepo.ListUnplanned(ctx, s.pageSize)
	if err != nil {
		logger.Error("sweep: list unplanned outbox failed", zap.Error(err))
		return
	}
	for _, out := range events {
		post, err := s.postRepo.GetByID(ctx, out.PostID)
		if err != nil {
			logger.Warn("sweep: unplanned event without post", zap.String("post", out.PostID), zap.Error(err))
			continue
		}
		if _, err := s.dispatcher.Plan(ctx, post, out); err != nil {
			logger.Error("sweep: replan failed", zap.String("post", post.ID), zap.Error(err))
		}
	}
}

// requeueMissingDeliveries 回看窗口内的推模式帖子，
// 对比粉丝集合与已物化集合，补写缺失的 feed 项。
// 只对比发帖时已存在的关注边：取关清掉的投递不算缺失，
// 重新关注也只从新帖开始，不回填历史
func (s *Sweeper) requeueMissingDeliveries(ctx context.Context) {
	posts, err := s.postRepo.ListCreatedAfter(ctx, time.Now().Add(-s.lookBack), 1000)
	if err != nil {
		logger.Error("sweep: list recent posts failed", zap.Error(err))
		return
	}
	for _, post := range posts {
		out, err := s.outboxRepo.GetByPostID(ctx, post.ID)
		if err != nil || out.Strategy != model.StrategyPush || out.Status != "done" {
			continue
		}
		delivered, err := s.feedRepo.ListUserIDsByPost(ctx, post.ID)
		if err != nil {
			continue
		}
		has := make(map[string]struct{}, len(delivered))
		for _, id := range delivered {
			has[id] = struct{}{}
		}

		offset := 0
		for {
			fanIDs, err := s.fanRepo.ListFanIDsCreatedBefore(ctx, post.AuthorID, post.CreatedAt, offset, s.pageSize)
			if err != nil || len(fanIDs) == 0 {
				break
			}
			var missing []model.FeedEntry
			now := time.Now()
			for _, fanID := range fanIDs {
				if _, ok := has[fanID]; ok {
					continue
				}
				missing = append(missing, model.FeedEntry{
					ID:           uuid.New().String(),
					UserID:       fanID,
					PostID:       post.ID,
					SourceUserID: post.AuthorID,
					Score:        post.CreatedAt.UnixNano(),
					CreatedAt:    now,
				})
			}
			if len(missing) > 0 {
				if n, err := s.feedRepo.BatchUpsert(ctx, missing); err == nil && n > 0 {
					metrics.SweepRequeued.Add(float64(n))
					logger.Info("sweep: requeued missing deliveries",
						zap.String("post", post.ID), zap.Int64("count", n))
				}
			}
			if len(fanIDs) < s.pageSize {
				break
			}
			offset += s.pageSize
		}
	}
}
