package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/robcarmo/puppies-api/internal/service"
	"github.com/robcarmo/puppies-api/pkg/response"
)

type createPostRequest struct {
	AuthorID  string `json:"author_id" binding:"required"`
	Content   string `json:"content"`
	MediaURL  string `json:"media_url" binding:"omitempty,url"`
	MediaType string `json:"media_type" binding:"omitempty,oneof=image video"`
}

// CreatePost 发帖（提交后异步扇出到粉丝 feed）
// @Summary 发帖
// @Tags 帖子
// @Accept json
// @Produce json
// @Param request body createPostRequest true "帖子内容"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [post]
func (h *Handler) CreatePost(c *gin.Context) {
	var req createPostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	post, err := h.publisher.Publish(c.Request.Context(), req.AuthorID, req.Content, req.MediaURL, req.MediaType)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, post)
}

// GetPost 查询帖子
// @Summary 查询帖子
// @Tags 帖子
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [get]
func (h *Handler) GetPost(c *gin.Context) {
	post, err := h.postRepo.GetByID(c.Request.Context(), c.Param("post_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, post)
}

// ListPosts 全站最近帖子（键集分页）
// @Summary 最近帖子
// @Tags 帖子
// @Param cursor query string false "上一页返回的游标"
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/posts [get]
func (h *Handler) ListPosts(c *gin.Context) {
	cur, err := service.DecodeCursor(c.Query("cursor"))
	if err != nil {
		writeError(c, err)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	posts, err := h.postRepo.ListRecentBefore(c.Request.Context(), cur.Score, cur.PostID, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	next := ""
	if len(posts) == limit {
		last := posts[len(posts)-1]
		next = service.EncodeCursor(last.CreatedAt.UnixNano(), last.ID)
	}
	response.Success(c, gin.H{"posts": posts, "next_cursor": next})
}

// DeletePost 删除帖子并级联清理 feed 项、点赞与评论
// @Summary 删除帖子
// @Tags 帖子
// @Param post_id path string true "帖子ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id} [delete]
func (h *Handler) DeletePost(c *gin.Context) {
	id := c.Param("post_id")
	if _, err := h.postRepo.GetByID(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	if err := h.postRepo.DeleteCascade(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}
