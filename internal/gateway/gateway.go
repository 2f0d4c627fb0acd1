package gateway

import (
	"context"
	"learnmate_backend/internal/model"
)

// SubmissionRequest 整卷提交
type SubmissionRequest struct {
	SessionID string            `json:"sessionId"`
	ScopeKey  string            `json:"scopeKey"`
	UserID    uint              `json:"userId"`
	Answers   []SubmittedAnswer `json:"answers"`
	ElapsedMs int64             `json:"elapsedMs"`
}

type SubmittedAnswer struct {
	QuestionID     string `json:"questionId"`
	SelectedOption *int   `json:"selectedOption,omitempty"`
	FreeText       string `json:"freeText,omitempty"`
	TimeSpentMs    int64  `json:"timeSpentMs"`
}

// SubmissionResult 远端评卷结果；ServerComputed 为 true 时 Score 覆盖本地判分
type SubmissionResult struct {
	Score          *float64 `json:"score,omitempty"`
	ServerComputed bool     `json:"serverComputed"`
}

// Gateway 上游学习平台存储网关。拉题返回空集不是错误，
// 只有传输/鉴权层面的失败才返回 error。
type Gateway interface {
	FetchQuestions(ctx context.Context, scopeKey string, count int) (model.QuestionSet, error)
	SubmitAssessment(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error)
	FetchProgress(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error)
	WriteProgress(ctx context.Context, userKey string, record *model.ProgressRecord) error
}
