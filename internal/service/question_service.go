package service

import (
	"context"
	"learnmate_backend/internal/gateway"
	"learnmate_backend/internal/model"
	"learnmate_backend/pkg/logger"

	"go.uber.org/zap"
)

// QuestionService 题目获取：优先走网关，网关无题时尝试 AI 生成。
// 两条路都为空时返回空集（合法结果，会话直接完结且无成绩）。
type QuestionService struct {
	Gateway gateway.Gateway
	AI      *AIService
}

func NewQuestionService(gw gateway.Gateway, ai *AIService) *QuestionService {
	return &QuestionService{Gateway: gw, AI: ai}
}

func (s *QuestionService) AcquireQuestions(ctx context.Context, scopeKey string, count int) (model.QuestionSet, error) {
	questions, err := s.Gateway.FetchQuestions(ctx, scopeKey, count)
	if err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		return questions, nil
	}

	if s.AI == nil || !s.AI.Enabled() {
		return model.QuestionSet{}, nil
	}

	generated, err := s.AI.GenerateQuestions(ctx, scopeKey, "", count)
	if err != nil {
		// 生成失败不算内容错误，退回空集
		logger.Log.Warn("AI question generation failed",
			zap.String("scopeKey", scopeKey),
			zap.Error(err))
		return model.QuestionSet{}, nil
	}
	return generated, nil
}
