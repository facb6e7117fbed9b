package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/robcarmo/puppies-api/pkg/response"
)

type likeRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// Like 点赞（幂等：重复点赞为 no-op）
// @Summary 点赞
// @Tags 互动
// @Accept json
// @Produce json
// @Param post_id path string true "帖子ID"
// @Param request body likeRequest true "点赞用户"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/like [post]
func (h *Handler) Like(c *gin.Context) {
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.interactions.Like(c.Request.Context(), req.UserID, c.Param("post_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

// Unlike 取消点赞（幂等）
// @Summary 取消点赞
// @Tags 互动
// @Accept json
// @Produce json
// @Param post_id path string true "帖子ID"
// @Param request body likeRequest true "用户"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/like [delete]
func (h *Handler) Unlike(c *gin.Context) {
	var req likeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.interactions.Unlike(c.Request.Context(), req.UserID, c.Param("post_id")); err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, nil)
}

type createCommentRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CreateComment 发表评论
// @Summary 发表评论
// @Tags 互动
// @Accept json
// @Produce json
// @Param post_id path string true "帖子ID"
// @Param request body createCommentRequest true "评论内容"
// @Success 201 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments [post]
func (h *Handler) CreateComment(c *gin.Context) {
	var req createCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	comment, err := h.interactions.AddComment(c.Request.Context(), req.UserID, c.Param("post_id"), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, comment)
}

// ListComments 查询评论（键集分页）
// @Summary 查询评论
// @Tags 互动
// @Param post_id path string true "帖子ID"
// @Param cursor query string false "游标"
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} response.Response
// @Router /api/v1/posts/{post_id}/comments [get]
func (h *Handler) ListComments(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	comments, next, err := h.interactions.ListComments(c.Request.Context(), c.Param("post_id"), c.Query("cursor"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, gin.H{"list": comments, "next_cursor": next})
}
