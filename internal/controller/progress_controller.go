package controller

import (
	"fmt"
	"learnmate_backend/internal/service"
	"learnmate_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type ProgressController struct {
	Service *service.ProgressService
}

func NewProgressController(svc *service.ProgressService) *ProgressController {
	return &ProgressController{Service: svc}
}

type RecordCompletionRequest struct {
	ProblemID int  `json:"problemId" binding:"required"`
	Solved    bool `json:"solved"`
}

// userKey 进度按用户区分；优先用邮箱，没有则退回用户ID
func userKey(user *util.Claims) string {
	if user.Email != "" {
		return user.Email
	}
	return fmt.Sprintf("uid:%d", user.UserID)
}

// @Summary 获取做题进度（远端优先，失败回退本地缓存）
// @Tags 做题进度
// @Produce json
// @Security BearerAuth
// @Param scopeKey path string true "进度范围"
// @Success 200 {object} util.Response
// @Router /api/progress/{scopeKey} [get]
func (c *ProgressController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	record, err := c.Service.Reconcile(ctx.Request.Context(), userKey(user), ctx.Param("scopeKey"))
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, record)
}

// @Summary 记录一次完成（本地先行，异步透写远端）
// @Tags 做题进度
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param scopeKey path string true "进度范围"
// @Param body body RecordCompletionRequest true "完成信息"
// @Success 200 {object} util.Response
// @Router /api/progress/{scopeKey}/completions [post]
func (c *ProgressController) RecordCompletion(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req RecordCompletionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	record, err := c.Service.RecordCompletion(ctx.Request.Context(), userKey(user), ctx.Param("scopeKey"), req.ProblemID, req.Solved)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, record)
}
