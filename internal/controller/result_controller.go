package controller

import (
	"learnmate_backend/internal/repository"
	"learnmate_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type ResultController struct {
	Repo *repository.QuizResultRepository
}

func NewResultController(repo *repository.QuizResultRepository) *ResultController {
	return &ResultController{Repo: repo}
}

// @Summary 历史测验成绩（分页）
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param page query int false "页码"
// @Param limit query int false "每页数量"
// @Success 200 {object} util.Response
// @Router /api/results [get]
func (c *ResultController) List(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	page, _ := strconv.Atoi(ctx.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "20"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	results, total, err := c.Repo.FindByUser(user.UserID, page, limit)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}

	util.Success(ctx, util.PageResponse{
		List:  results,
		Total: total,
		Page:  page,
		Limit: limit,
	})
}
