package service

import (
	"learnmate_backend/internal/model"
	"time"
)

// QuestionView 题目对外视图。答题期间不下发正确答案和解析，
// 完结后的回顾视图才带上。
type QuestionView struct {
	ID                 string               `json:"id"`
	PromptText         string               `json:"promptText"`
	Options            []string             `json:"options"`
	Difficulty         model.DifficultyTier `json:"difficulty"`
	TopicRef           string               `json:"topicRef"`
	CorrectOptionIndex *int                 `json:"correctOptionIndex,omitempty"`
	Explanation        string               `json:"explanation,omitempty"`
}

// SessionView 会话对外视图
type SessionView struct {
	ID            string               `json:"id"`
	ScopeKey      string               `json:"scopeKey"`
	Policy        model.FlowPolicy     `json:"policy"`
	State         model.LifecycleState `json:"state"`
	CurrentIndex  int                  `json:"currentIndex"`
	QuestionCount int                  `json:"questionCount"`
	AnsweredCount int                  `json:"answeredCount"`

	CurrentQuestion *QuestionView        `json:"currentQuestion,omitempty"`
	Questions       []QuestionView       `json:"questions,omitempty"`
	Answers         map[int]model.Answer `json:"answers,omitempty"`

	Score        *float64 `json:"score,omitempty"`
	CorrectCount int      `json:"correctCount"`
	ServerScored bool     `json:"serverScored"`
	Passed       *bool    `json:"passed,omitempty"`

	LoadError string `json:"loadError,omitempty"`

	RemainingSeconds int   `json:"remainingSeconds"` // -1 表示不限时
	ElapsedMs        int64 `json:"elapsedMs"`

	CreatedAt   time.Time  `json:"createdAt"`
	StartedAt   *time.Time `json:"startedAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

func questionView(q model.Question, revealAnswer bool) QuestionView {
	view := QuestionView{
		ID:         q.ID,
		PromptText: q.PromptText,
		Options:    q.Options,
		Difficulty: q.Difficulty,
		TopicRef:   q.TopicRef,
	}
	if revealAnswer {
		view.CorrectOptionIndex = q.CorrectOptionIndex
		view.Explanation = q.Explanation
	}
	return view
}

// NewSessionView 由会话快照构建对外视图
func NewSessionView(s *model.AssessmentSession) *SessionView {
	now := time.Now()
	completed := s.State == model.StateCompleted

	view := &SessionView{
		ID:               s.ID,
		ScopeKey:         s.ScopeKey,
		Policy:           s.Policy,
		State:            s.State,
		CurrentIndex:     s.CurrentIndex,
		QuestionCount:    len(s.Questions),
		AnsweredCount:    len(s.Ledger),
		Score:            s.Score,
		CorrectCount:     s.CorrectCount,
		ServerScored:     s.ServerScored,
		LoadError:        s.LoadError,
		RemainingSeconds: s.RemainingSeconds(now),
		ElapsedMs:        s.ElapsedMs(now),
		CreatedAt:        s.CreatedAt,
		StartedAt:        s.StartedAt,
		CompletedAt:      s.CompletedAt,
	}

	if s.State == model.StateInProgress && s.CurrentIndex < len(s.Questions) {
		q := questionView(s.Questions[s.CurrentIndex], false)
		view.CurrentQuestion = &q
	}

	if completed {
		if s.Score != nil {
			passed := *s.Score >= model.PassThreshold
			view.Passed = &passed
		}
		view.Questions = make([]QuestionView, 0, len(s.Questions))
		for _, q := range s.Questions {
			view.Questions = append(view.Questions, questionView(q, true))
		}
		view.Answers = s.Ledger
	}

	return view
}
