package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/logger"
)

type replicateAction int

const (
	actionAdd replicateAction = iota + 1
	actionRemove
)

type replicateJob struct {
	action replicateAction
	userID string // followee
	fanID  string // follower
	enqAt  time.Time
}

// FanReplicator 本地异步冗余执行器：关注/取关后异步维护 fans 表；
// 取关时额外惰性清理 follower feed 中该 followee 的物化项
type FanReplicator struct {
	fanRepo  repository.FanRepository
	feedRepo repository.FeedRepository
	ch       chan replicateJob
}

func NewFanReplicator(fanRepo repository.FanRepository, feedRepo repository.FeedRepository, queueSize int) *FanReplicator {
	if queueSize <= 0 {
		queueSize = 10000
	}
	return &FanReplicator{fanRepo: fanRepo, feedRepo: feedRepo, ch: make(chan replicateJob, queueSize)}
}

func (r *FanReplicator) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	stopCh := make(chan struct{})
	for i := 0; i < workers; i++ {
		go func() {
			for {
				select {
				case job := <-r.ch:
					ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					switch job.action {
					case actionAdd:
						if err := r.fanRepo.Create(ctx, job.userID, job.fanID); err != nil {
							logger.Warn("fan replicate add failed", zap.String("user", job.userID), zap.Error(err))
						}
					case actionRemove:
						if err := r.fanRepo.Delete(ctx, job.userID, job.fanID); err != nil {
							logger.Warn("fan replicate remove failed", zap.String("user", job.userID), zap.Error(err))
						}
						// 已投递的 feed 项失去关注边后清除；漏网的由孤儿清扫兜底
						if err := r.feedRepo.DeleteBySource(ctx, job.fanID, job.userID); err != nil {
							logger.Warn("feed purge on unfollow failed",
								zap.String("owner", job.fanID), zap.String("source", job.userID), zap.Error(err))
						}
					}
					cancel()
				case <-stopCh:
					return
				}
			}
		}()
	}
	return func(ctx context.Context) error {
		close(stopCh)
		// 等待队列自然排空一小段时间
		timeout := time.After(2 * time.Second)
		for {
			select {
			case <-timeout:
				return nil
			default:
				if len(r.ch) == 0 {
					return nil
				}
				time.Sleep(50 * time.Millisecond)
			}
		}
	}
}

func (r *FanReplicator) EnqueueAdd(userID, fanID string) {
	select {
	case r.ch <- replicateJob{action: actionAdd, userID: userID, fanID: fanID, enqAt: time.Now()}:
	default:
		logger.Warn("replicator queue full, drop add", zap.String("user", userID), zap.String("fan", fanID))
	}
}

func (r *FanReplicator) EnqueueRemove(userID, fanID string) {
	select {
	case r.ch <- replicateJob{action: actionRemove, userID: userID, fanID: fanID, enqAt: time.Now()}:
	default:
		logger.Warn("replicator queue full, drop remove", zap.String("user", userID), zap.String("fan", fanID))
	}
}

// QueueLen 返回当前队列长度（采样值）。
func (r *FanReplicator) QueueLen() int { return len(r.ch) }
