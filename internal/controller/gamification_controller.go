package controller

import (
	"learnmate_backend/internal/service"
	"learnmate_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type GamificationController struct {
	Service *service.GamificationService
}

func NewGamificationController(svc *service.GamificationService) *GamificationController {
	return &GamificationController{Service: svc}
}

// @Summary 获取积分、等级和徽章
// @Tags 游戏化
// @Produce json
// @Security BearerAuth
// @Success 200 {object} util.Response
// @Router /api/gamification [get]
func (c *GamificationController) GetUserData(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	data, err := c.Service.GetUserGamificationData(user.UserID)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, data)
}

// @Summary 积分排行榜
// @Tags 游戏化
// @Produce json
// @Security BearerAuth
// @Param limit query int false "名额数，默认10"
// @Success 200 {object} util.Response
// @Router /api/gamification/leaderboard [get]
func (c *GamificationController) GetLeaderboard(ctx *gin.Context) {
	limit := 10
	if limitStr := ctx.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil {
			limit = n
		}
	}

	entries, err := c.Service.GetLeaderboard(limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	util.Success(ctx, entries)
}
