package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/robcarmo/puppies-api/pkg/response"
)

type registerRequest struct {
	Username  string `json:"username" binding:"required,handle"`
	Email     string `json:"email" binding:"required,email"`
	FullName  string `json:"full_name"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,url"`
}

// Register 注册用户
// @Summary 注册用户
// @Tags 用户
// @Accept json
// @Produce json
// @Param request body registerRequest true "注册信息"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /api/v1/users [post]
func (h *Handler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userSvc.Register(c.Request.Context(), req.Username, req.Email, req.FullName, req.Bio, req.AvatarURL)
	if err != nil {
		writeError(c, err)
		return
	}
	response.Created(c, u)
}

// GetUser 查询用户
// @Summary 查询用户
// @Tags 用户
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.userSvc.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	response.Success(c, u)
}
