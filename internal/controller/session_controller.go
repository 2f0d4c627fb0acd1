package controller

import (
	"errors"
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/service"
	"learnmate_backend/internal/util"
	"net/http"

	"github.com/gin-gonic/gin"
)

type SessionController struct {
	Manager *service.SessionManager
}

func NewSessionController(manager *service.SessionManager) *SessionController {
	return &SessionController{Manager: manager}
}

type CreateSessionRequest struct {
	ScopeKey      string `json:"scopeKey" binding:"required"`
	Flow          string `json:"flow"`
	QuestionCount int    `json:"questionCount"`
	// 正数覆盖流程预设倒计时，负数关闭倒计时，0 用预设值
	CountdownSeconds int `json:"countdownSeconds"`
}

type RecordAnswerRequest struct {
	QuestionIndex  int    `json:"questionIndex"`
	SelectedOption *int   `json:"selectedOption"`
	FreeText       string `json:"freeText"`
}

type RetryRequest struct {
	QuestionCount int `json:"questionCount"`
}

// respondSession 统一错误映射后输出会话视图
func respondSession(ctx *gin.Context, session *model.AssessmentSession, err error) {
	if err != nil {
		switch {
		case errors.Is(err, util.ErrSessionNotFound):
			util.NotFound(ctx)
		case errors.Is(err, util.ErrPermissionDenied):
			util.Forbidden(ctx)
		case errors.Is(err, util.ErrInvalidTransition):
			util.Error(ctx, http.StatusConflict, err.Error())
		case errors.Is(err, service.ErrAnswerRequired),
			errors.Is(err, service.ErrUnansweredQuestions),
			errors.Is(err, service.ErrQuestionIndexOutOfRange):
			util.BadRequest(ctx, err.Error())
		default:
			util.LogInternalError(ctx, err)
		}
		return
	}
	util.Success(ctx, service.NewSessionView(session))
}

// @Summary 创建评估会话
// @Tags 评估会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body CreateSessionRequest true "会话参数"
// @Success 201 {object} util.Response
// @Router /api/sessions [post]
func (c *SessionController) Create(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session := c.Manager.CreateSession(user.UserID, req.ScopeKey, req.Flow, req.QuestionCount, req.CountdownSeconds)
	util.Created(ctx, service.NewSessionView(session))
}

// @Summary 获取会话状态
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id} [get]
func (c *SessionController) Get(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Get(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 开始答题
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/start [post]
func (c *SessionController) Start(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Start(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 提交某题作答
// @Tags 评估会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Param body body RecordAnswerRequest true "作答内容"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/answers [post]
func (c *SessionController) RecordAnswer(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	var req RecordAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	session, err := c.Manager.RecordAnswer(ctx.Param("id"), user.UserID, req.QuestionIndex, req.SelectedOption, req.FreeText)
	respondSession(ctx, session, err)
}

// @Summary 下一题
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/advance [post]
func (c *SessionController) Advance(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Advance(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 上一题
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/retreat [post]
func (c *SessionController) Retreat(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Retreat(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 交卷
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/finish [post]
func (c *SessionController) Finish(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Finish(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 重做（同一批题目开新会话）
// @Tags 评估会话
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/restart [post]
func (c *SessionController) Restart(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	session, err := c.Manager.Restart(ctx.Param("id"), user.UserID)
	respondSession(ctx, session, err)
}

// @Summary 拉题失败后重试
// @Tags 评估会话
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "会话ID"
// @Success 200 {object} util.Response
// @Router /api/sessions/{id}/retry [post]
func (c *SessionController) Retry(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	if user == nil {
		util.Unauthorized(ctx)
		return
	}

	// body 可省略，省略时沿用默认题目数
	var req RetryRequest
	_ = ctx.ShouldBindJSON(&req)

	session, err := c.Manager.Retry(ctx.Param("id"), user.UserID, req.QuestionCount)
	respondSession(ctx, session, err)
}
