package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/robcarmo/puppies-api/internal/model"
	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/pkg/metrics"
)

var (
	ErrPostNotFound = errors.New("post not found")
	ErrEmptyComment = errors.New("comment content cannot be empty")
)

// InteractionService 点赞/评论及其计数维护。
// 计数与原始写同事务增量更新，补偿任务定期对账修正漂移。
type InteractionService struct {
	db          *gorm.DB
	commentRepo repository.CommentRepository
}

func NewInteractionService(db *gorm.DB, commentRepo repository.CommentRepository) *InteractionService {
	return &InteractionService{db: db, commentRepo: commentRepo}
}

// Like 幂等：重复点赞不报错也不重复计数
func (s *InteractionService) Like(ctx context.Context, userID, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePost(tx, postID); err != nil {
			return err
		}
		like := &model.Like{UserID: userID, PostID: postID, CreatedAt: time.Now()}
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// 已点过，no-op
			return nil
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count + 1")).Error
	})
}

// Unlike 幂等：未点赞时为 no-op
func (s *InteractionService) Unlike(ctx context.Context, userID, postID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePost(tx, postID); err != nil {
			return err
		}
		res := tx.Where("user_id = ? AND post_id = ?", userID, postID).Delete(&model.Like{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("like_count", gorm.Expr("like_count - 1")).Error
	})
}

func (s *InteractionService) AddComment(ctx context.Context, userID, postID, content string) (*model.Comment, error) {
	if content == "" {
		return nil, ErrEmptyComment
	}
	c := &model.Comment{
		ID:        uuid.New().String(),
		PostID:    postID,
		UserID:    userID,
		Content:   content,
		CreatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensurePost(tx, postID); err != nil {
			return err
		}
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		return tx.Model(&model.Post{}).Where("id = ?", postID).
			UpdateColumn("comment_count", gorm.Expr("comment_count + 1")).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *InteractionService) ListComments(ctx context.Context, postID, cursorStr string, limit int) ([]*model.Comment, string, error) {
	cur, err := DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		limit = 20
	}
	comments, err := s.commentRepo.ListByPostBefore(ctx, postID, cur.Score, cur.PostID, limit)
	if err != nil {
		return nil, "", err
	}
	next := ""
	if len(comments) == limit {
		last := comments[len(comments)-1]
		next = EncodeCursor(last.CreatedAt.UnixNano(), last.ID)
	}
	return comments, next, nil
}

// ReconcileCounts 用原始表重算计数，修正部分失败留下的漂移；返回修正的帖子数
func (s *InteractionService) ReconcileCounts(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).Exec(`
        UPDATE posts SET
            like_count = (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id),
            comment_count = (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)
        WHERE posts.like_count <> (SELECT COUNT(*) FROM likes WHERE likes.post_id = posts.id)
           OR posts.comment_count <> (SELECT COUNT(*) FROM comments WHERE comments.post_id = posts.id)`)
	if res.Error != nil {
		return 0, res.Error
	}
	metrics.CounterDriftFixed.Add(float64(res.RowsAffected))
	return res.RowsAffected, nil
}

func ensurePost(tx *gorm.DB, postID string) error {
	var cnt int64
	if err := tx.Model(&model.Post{}).Where("id = ?", postID).Count(&cnt).Error; err != nil {
		return err
	}
	if cnt == 0 {
		return ErrPostNotFound
	}
	return nil
}
