package model

import "time"

type LifecycleState string

const (
	StateLoading    LifecycleState = "loading"
	StateReady      LifecycleState = "ready"
	StateInProgress LifecycleState = "in_progress"
	StateCompleted  LifecycleState = "completed"
	StateErrored    LifecycleState = "errored"
)

type TimerMode string

const (
	TimerPerQuestion  TimerMode = "per_question"
	TimerWholeSession TimerMode = "whole_session"
)

// FlowPolicy 各业务流对导航和交卷规则的配置。
// 来源页面行为不一致（有的流禁止跳过未答题，有的允许中途交卷），
// 因此这里把差异显式建模为策略，而不是写死某一种。
type FlowPolicy struct {
	Flow                   string    `json:"flow"`
	AutoStart              bool      `json:"autoStart"`              // 拉题完成后直接进入答题
	RequireAnswerToAdvance bool      `json:"requireAnswerToAdvance"` // 当前题未作答不允许下一题
	RequireAllAnswered     bool      `json:"requireAllAnswered"`     // 交卷前必须全部作答
	TimerMode              TimerMode `json:"timerMode"`
	CountdownSeconds       int       `json:"countdownSeconds"` // 0 表示不限时（仅计耗时）
}

const (
	FlowTopicQuiz      = "topic_quiz"
	FlowKnowledgeCheck = "knowledge_check"
	FlowInterview      = "interview"
	FlowPractice       = "practice"
)

// Answer 某一题的作答记录
type Answer struct {
	SelectedOption *int      `json:"selectedOption,omitempty"`
	FreeText       string    `json:"freeText,omitempty"`
	TimeSpentMs    int64     `json:"timeSpentMs"`
	AttemptedAt    time.Time `json:"attemptedAt"`
}

// AnswerLedger 题目下标到作答的映射；in_progress 期间允许覆盖，completed 后只读
type AnswerLedger map[int]Answer

func (l AnswerLedger) Answered(index int) bool {
	_, ok := l[index]
	return ok
}

func (l AnswerLedger) AllAnswered(total int) bool {
	for i := 0; i < total; i++ {
		if !l.Answered(i) {
			return false
		}
	}
	return true
}

// AssessmentSession 一次评估会话。由 SessionManager 持有并串行修改，
// 销毁即丢弃，重做会创建新会话而不是复用。
type AssessmentSession struct {
	ID           string         `json:"id"`
	UserID       uint           `json:"userId"`
	ScopeKey     string         `json:"scopeKey"`
	Policy       FlowPolicy     `json:"policy"`
	Questions    QuestionSet    `json:"-"`
	Ledger       AnswerLedger   `json:"-"`
	CurrentIndex int            `json:"currentIndex"`
	State        LifecycleState `json:"state"`

	// 判分结果；Score 为 nil 表示无可判分内容（空题集或纯主观题且远端未评分）
	Score        *float64 `json:"score,omitempty"`
	CorrectCount int      `json:"correctCount"`
	ServerScored bool     `json:"serverScored"`

	LoadError string `json:"loadError,omitempty"`

	CreatedAt       time.Time  `json:"createdAt"`
	StartedAt       *time.Time `json:"startedAt,omitempty"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
	QuestionShownAt time.Time  `json:"-"` // 当前题展示时刻，用于单题耗时
	Deadline        *time.Time `json:"-"` // 当前倒计时到期时刻（单题或整场）
}

// RemainingSeconds 距当前倒计时到期的剩余秒数；不限时返回 -1
func (s *AssessmentSession) RemainingSeconds(now time.Time) int {
	if s.Deadline == nil || s.State != StateInProgress {
		if s.State == StateCompleted {
			return 0
		}
		return -1
	}
	remaining := int(s.Deadline.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// ElapsedMs 从开始答题到结束（或当前）的耗时
func (s *AssessmentSession) ElapsedMs(now time.Time) int64 {
	if s.StartedAt == nil {
		return 0
	}
	end := now
	if s.CompletedAt != nil {
		end = *s.CompletedAt
	}
	return end.Sub(*s.StartedAt).Milliseconds()
}

// Snapshot 深拷贝，供锁外安全读取
func (s *AssessmentSession) Snapshot() *AssessmentSession {
	cp := *s
	cp.Questions = append(QuestionSet(nil), s.Questions...)
	cp.Ledger = make(AnswerLedger, len(s.Ledger))
	for i, a := range s.Ledger {
		cp.Ledger[i] = a
	}
	return &cp
}

// ComputeLocalScore 精确比对已答选项与正确选项。
// 分母只计入可本地判分的题目；没有可判分题目时返回 nil。
func (s *AssessmentSession) ComputeLocalScore() (*float64, int) {
	gradable := s.Questions.GradableCount()
	if gradable == 0 {
		return nil, 0
	}

	correct := 0
	for i, q := range s.Questions {
		if !q.Gradable() {
			continue
		}
		ans, ok := s.Ledger[i]
		if !ok || ans.SelectedOption == nil {
			continue
		}
		if *ans.SelectedOption == *q.CorrectOptionIndex {
			correct++
		}
	}

	score := float64(correct) / float64(gradable)
	return &score, correct
}
