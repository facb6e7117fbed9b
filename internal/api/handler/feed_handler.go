package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/robcarmo/puppies-api/pkg/response"
)

// GetFeed 查询用户 feed（物化流 + 热点作者拉取流的合并分页）
// @Summary 查询 feed
// @Tags Feed
// @Param user_id path string true "用户ID"
// @Param cursor query string false "上一页返回的游标"
// @Param limit query int false "每页数量" default(20)
// @Success 200 {object} response.Response{data=service.FeedPage}
// @Failure 400 {object} response.Response
// @Router /api/v1/feeds/{user_id} [get]
func (h *Handler) GetFeed(c *gin.Context) {
	userID := c.Param("user_id")
	cursor := c.Query("cursor")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))

	page, err := h.feedSvc.GetFeed(c.Request.Context(), userID, cursor, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, page)
}
