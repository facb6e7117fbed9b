package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/robcarmo/puppies-api/internal/repository"
	"github.com/robcarmo/puppies-api/internal/service"
	"github.com/robcarmo/puppies-api/pkg/response"
)

// Handler 聚合全部 HTTP 处理器依赖
type Handler struct {
	userSvc      service.UserService
	relService   service.RelationshipService
	publisher    *service.Publisher
	feedSvc      *service.FeedService
	interactions *service.InteractionService
	postRepo     repository.PostRepository
}

func NewHandler(userSvc service.UserService, relService service.RelationshipService,
	publisher *service.Publisher, feedSvc *service.FeedService,
	interactions *service.InteractionService, postRepo repository.PostRepository) *Handler {
	return &Handler{userSvc: userSvc, relService: relService, publisher: publisher,
		feedSvc: feedSvc, interactions: interactions, postRepo: postRepo}
}

// writeError 按错误分类映射状态码：
// 校验 400 / 不存在 404 / 冲突 409 / 其余 500
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound), errors.Is(err, service.ErrPostNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, repository.ErrDuplicateUser):
		response.Conflict(c, err.Error())
	case errors.Is(err, service.ErrFollowSelf),
		errors.Is(err, service.ErrBadCursor),
		errors.Is(err, service.ErrEmptyContent),
		errors.Is(err, service.ErrEmptyComment):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
