package service

import (
	"context"
	"errors"
	"fmt"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/gateway"
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/repository"
	"learnmate_backend/internal/util"
	"learnmate_backend/pkg/logger"
	"learnmate_backend/pkg/monitoring"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrAnswerRequired 当前流要求作答后才能进入下一题
	ErrAnswerRequired = errors.New("current question must be answered before advancing")
	// ErrUnansweredQuestions 当前流要求全部作答后才能交卷
	ErrUnansweredQuestions = errors.New("all questions must be answered before finishing")
	// ErrQuestionIndexOutOfRange 作答下标越界
	ErrQuestionIndexOutOfRange = errors.New("question index out of range")
)

// managedSession 会话及其私有的倒计时调度器。
// 所有状态变更都在 mu 下串行执行，loadEpoch 用于拦截过期的异步结果。
type managedSession struct {
	mu        sync.Mutex
	session   *model.AssessmentSession
	timer     *TimerController
	loadEpoch uint64
}

// SessionManager 内存中的评估会话注册表。
// 同一 用户+范围 最多一个活动会话，新建会替换并丢弃旧会话。
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*managedSession
	active   map[string]string // userKey|scopeKey -> session ID

	Questions *QuestionService
	Gateway   gateway.Gateway
	Results   *repository.QuizResultRepository
	Gamify    *GamificationService

	cfg  config.SessionConfig
	stop chan struct{}
}

func NewSessionManager(questions *QuestionService, gw gateway.Gateway, results *repository.QuizResultRepository, gamify *GamificationService, cfg config.SessionConfig) *SessionManager {
	return &SessionManager{
		sessions:  make(map[string]*managedSession),
		active:    make(map[string]string),
		Questions: questions,
		Gateway:   gw,
		Results:   results,
		Gamify:    gamify,
		cfg:       cfg,
		stop:      make(chan struct{}),
	}
}

// PolicyForFlow 各业务流的导航与计时策略
func (m *SessionManager) PolicyForFlow(flow string) model.FlowPolicy {
	switch flow {
	case model.FlowKnowledgeCheck:
		return model.FlowPolicy{
			Flow:                   flow,
			AutoStart:              false,
			RequireAnswerToAdvance: true,
			RequireAllAnswered:     true,
			TimerMode:              model.TimerWholeSession,
			CountdownSeconds:       m.cfg.SessionSeconds,
		}
	case model.FlowInterview:
		return model.FlowPolicy{
			Flow:             flow,
			AutoStart:        true,
			TimerMode:        model.TimerPerQuestion,
			CountdownSeconds: m.cfg.QuestionSeconds,
		}
	case model.FlowPractice:
		return model.FlowPolicy{
			Flow:             flow,
			TimerMode:        model.TimerWholeSession,
			CountdownSeconds: m.cfg.SessionSeconds,
		}
	default:
		// topic_quiz：只计耗时，不限时，未答不许跳题，可随时交卷
		return model.FlowPolicy{
			Flow:                   model.FlowTopicQuiz,
			AutoStart:              true,
			RequireAnswerToAdvance: true,
			TimerMode:              model.TimerWholeSession,
			CountdownSeconds:       0,
		}
	}
}

func activeKey(userID uint, scopeKey string) string {
	return fmt.Sprintf("%d|%s", userID, scopeKey)
}

// CreateSession 创建会话并异步拉题。同一 用户+范围 的旧会话被替换，
// 旧会话在途的异步结果随后到达时会被丢弃。
// countdownSeconds 正数覆盖预设时长，负数关闭倒计时，0 用预设值。
func (m *SessionManager) CreateSession(userID uint, scopeKey, flow string, questionCount, countdownSeconds int) *model.AssessmentSession {
	if questionCount <= 0 {
		questionCount = m.cfg.DefaultQuestionCount
	}

	policy := m.PolicyForFlow(flow)
	if countdownSeconds > 0 {
		policy.CountdownSeconds = countdownSeconds
	} else if countdownSeconds < 0 {
		policy.CountdownSeconds = 0
	}
	session := &model.AssessmentSession{
		ID:        model.GenerateUUID(),
		UserID:    userID,
		ScopeKey:  scopeKey,
		Policy:    policy,
		Ledger:    make(model.AnswerLedger),
		State:     model.StateLoading,
		CreatedAt: time.Now(),
	}

	ms := &managedSession{
		session: session,
		timer:   NewTimerController(),
	}

	m.mu.Lock()
	if oldID, ok := m.active[activeKey(userID, scopeKey)]; ok {
		m.discardLocked(oldID)
	}
	m.sessions[session.ID] = ms
	m.active[activeKey(userID, scopeKey)] = session.ID
	m.mu.Unlock()

	monitoring.SessionCounter.WithLabelValues(policy.Flow, string(model.StateLoading)).Inc()

	go m.loadQuestions(session.ID, 1, scopeKey, questionCount)
	return session.Snapshot()
}

// discardLocked 移除会话并取消其计时器；调用方需持有 m.mu
func (m *SessionManager) discardLocked(sessionID string) {
	if ms, ok := m.sessions[sessionID]; ok {
		ms.timer.Cancel()
		delete(m.sessions, sessionID)
	}
}

func (m *SessionManager) lookup(sessionID string) (*managedSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[sessionID]
	return ms, ok
}

// loadQuestions 异步拉题并投递结果；目标会话已被替换时结果直接丢弃
func (m *SessionManager) loadQuestions(sessionID string, epoch uint64, scopeKey string, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	questions, err := m.Questions.AcquireQuestions(ctx, scopeKey, count)

	ms, ok := m.lookup(sessionID)
	if !ok {
		monitoring.StaleResponseCounter.Inc()
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.loadEpoch+1 != epoch || ms.session.State != model.StateLoading {
		monitoring.StaleResponseCounter.Inc()
		return
	}
	ms.loadEpoch = epoch

	session := ms.session
	if err != nil {
		session.State = model.StateErrored
		session.LoadError = err.Error()
		monitoring.SessionCounter.WithLabelValues(session.Policy.Flow, string(model.StateErrored)).Inc()
		logger.Log.Warn("question load failed",
			zap.String("sessionId", session.ID),
			zap.String("scopeKey", session.ScopeKey),
			zap.Error(err))
		return
	}

	session.Questions = questions

	// 空题集是合法终态：直接完结，无成绩
	if len(questions) == 0 {
		now := time.Now()
		session.State = model.StateCompleted
		session.CompletedAt = &now
		monitoring.SessionCounter.WithLabelValues(session.Policy.Flow, string(model.StateCompleted)).Inc()
		return
	}

	session.State = model.StateReady
	monitoring.SessionCounter.WithLabelValues(session.Policy.Flow, string(model.StateReady)).Inc()

	if session.Policy.AutoStart {
		m.startLocked(ms)
	}
}

// Get 返回会话快照
func (m *SessionManager) Get(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	return ms.session.Snapshot(), nil
}

// Start 由 ready 进入 in_progress；其他状态下是防御性 no-op
func (m *SessionManager) Start(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if ms.session.State == model.StateReady {
		m.startLocked(ms)
	}
	return ms.session.Snapshot(), nil
}

func (m *SessionManager) startLocked(ms *managedSession) {
	session := ms.session
	now := time.Now()
	session.State = model.StateInProgress
	session.StartedAt = &now
	session.QuestionShownAt = now
	monitoring.SessionCounter.WithLabelValues(session.Policy.Flow, string(model.StateInProgress)).Inc()

	m.armTimerLocked(ms)
}

// armTimerLocked 按策略安排当前倒计时；不限时则只清空旧计划
func (m *SessionManager) armTimerLocked(ms *managedSession) {
	session := ms.session
	seconds := session.Policy.CountdownSeconds
	if seconds <= 0 {
		session.Deadline = nil
		ms.timer.Cancel()
		return
	}

	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	session.Deadline = &deadline

	sessionID := session.ID
	switch session.Policy.TimerMode {
	case model.TimerPerQuestion:
		ms.timer.Arm(time.Until(deadline), func() {
			m.onQuestionExpired(sessionID)
		})
	default:
		ms.timer.Arm(time.Until(deadline), func() {
			m.onSessionExpired(sessionID)
		})
	}
}

// onQuestionExpired 单题倒计时到期：自动进入下一题，最后一题则整卷完结
func (m *SessionManager) onQuestionExpired(sessionID string) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.State != model.StateInProgress {
		return
	}
	monitoring.TimerExpiryCounter.WithLabelValues(string(model.TimerPerQuestion)).Inc()

	if session.CurrentIndex >= len(session.Questions)-1 {
		m.finishLocked(ms, true)
		return
	}
	session.CurrentIndex++
	session.QuestionShownAt = time.Now()
	m.armTimerLocked(ms)
}

// onSessionExpired 整场倒计时到期：强制交卷
func (m *SessionManager) onSessionExpired(sessionID string) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.session.State != model.StateInProgress {
		return
	}
	monitoring.TimerExpiryCounter.WithLabelValues(string(model.TimerWholeSession)).Inc()
	m.finishLocked(ms, true)
}

// RecordAnswer 记录某题作答；in_progress 期间可覆盖，其余状态拒绝
func (m *SessionManager) RecordAnswer(sessionID string, userID uint, index int, selectedOption *int, freeText string) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if session.State != model.StateInProgress {
		return nil, util.ErrInvalidTransition
	}
	if index < 0 || index >= len(session.Questions) {
		return nil, ErrQuestionIndexOutOfRange
	}

	now := time.Now()
	answer := model.Answer{
		SelectedOption: selectedOption,
		FreeText:       freeText,
		AttemptedAt:    now,
	}
	if index == session.CurrentIndex {
		answer.TimeSpentMs = now.Sub(session.QuestionShownAt).Milliseconds()
	}
	session.Ledger[index] = answer

	return session.Snapshot(), nil
}

// Advance 下一题；最后一题上是 no-op（交卷必须显式调用 Finish）
func (m *SessionManager) Advance(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if session.State != model.StateInProgress {
		return nil, util.ErrInvalidTransition
	}
	if session.Policy.RequireAnswerToAdvance && !session.Ledger.Answered(session.CurrentIndex) {
		return nil, ErrAnswerRequired
	}
	if session.CurrentIndex >= len(session.Questions)-1 {
		return session.Snapshot(), nil
	}

	session.CurrentIndex++
	session.QuestionShownAt = time.Now()
	if session.Policy.TimerMode == model.TimerPerQuestion {
		m.armTimerLocked(ms)
	}
	return session.Snapshot(), nil
}

// Retreat 上一题；第一题上是 no-op
func (m *SessionManager) Retreat(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if session.State != model.StateInProgress {
		return nil, util.ErrInvalidTransition
	}
	if session.CurrentIndex <= 0 {
		return session.Snapshot(), nil
	}

	session.CurrentIndex--
	session.QuestionShownAt = time.Now()
	if session.Policy.TimerMode == model.TimerPerQuestion {
		m.armTimerLocked(ms)
	}
	return session.Snapshot(), nil
}

// Finish 交卷。已完结会话上是幂等 no-op，用户交卷与超时强制交卷
// 竞争时只会产生一次完结。
func (m *SessionManager) Finish(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if session.State == model.StateCompleted {
		return session.Snapshot(), nil
	}
	if session.State != model.StateInProgress {
		return nil, util.ErrInvalidTransition
	}
	if session.Policy.RequireAllAnswered && !session.Ledger.AllAnswered(len(session.Questions)) {
		return nil, ErrUnansweredQuestions
	}

	m.finishLocked(ms, false)
	return session.Snapshot(), nil
}

// finishLocked 完结会话：本地判分、归档、异步提交远端评分。
// force 为 true 时跳过策略校验（超时路径）。
func (m *SessionManager) finishLocked(ms *managedSession, force bool) {
	session := ms.session
	if session.State != model.StateInProgress {
		return
	}

	now := time.Now()
	session.State = model.StateCompleted
	session.CompletedAt = &now
	session.Deadline = nil
	ms.timer.Cancel()

	session.Score, session.CorrectCount = session.ComputeLocalScore()
	monitoring.SessionCounter.WithLabelValues(session.Policy.Flow, string(model.StateCompleted)).Inc()

	m.archiveResult(session)
	go m.submitToGateway(session.ID, buildSubmission(session))

	if m.Gamify != nil {
		passed := session.Score != nil && *session.Score >= model.PassThreshold
		userID := session.UserID
		scopeKey := session.ScopeKey
		go func() {
			if err := m.Gamify.OnQuizCompleted(userID, scopeKey, passed); err != nil {
				logger.Log.Warn("gamification update failed",
					zap.Uint("userId", userID),
					zap.Error(err))
			}
		}()
	}
}

func buildSubmission(session *model.AssessmentSession) gateway.SubmissionRequest {
	answers := make([]gateway.SubmittedAnswer, 0, len(session.Ledger))
	for i, q := range session.Questions {
		ans, ok := session.Ledger[i]
		if !ok {
			continue
		}
		answers = append(answers, gateway.SubmittedAnswer{
			QuestionID:     q.ID,
			SelectedOption: ans.SelectedOption,
			FreeText:       ans.FreeText,
			TimeSpentMs:    ans.TimeSpentMs,
		})
	}
	return gateway.SubmissionRequest{
		SessionID: session.ID,
		ScopeKey:  session.ScopeKey,
		UserID:    session.UserID,
		Answers:   answers,
		ElapsedMs: session.ElapsedMs(time.Now()),
	}
}

// submitToGateway 上报整卷作答；远端返回权威分数时覆盖本地判分。
// 提交失败只记录日志，本地结果保持可用。
func (m *SessionManager) submitToGateway(sessionID string, req gateway.SubmissionRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := m.Gateway.SubmitAssessment(ctx, req)
	if err != nil {
		logger.Log.Warn("assessment submission failed",
			zap.String("sessionId", sessionID),
			zap.Error(err))
		return
	}
	if result == nil || !result.ServerComputed || result.Score == nil {
		return
	}

	ms, ok := m.lookup(sessionID)
	if !ok {
		monitoring.StaleResponseCounter.Inc()
		return
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.State != model.StateCompleted {
		monitoring.StaleResponseCounter.Inc()
		return
	}
	session.Score = result.Score
	session.ServerScored = true
}

func (m *SessionManager) archiveResult(session *model.AssessmentSession) {
	if m.Results == nil {
		return
	}

	score := 0.0
	if session.Score != nil {
		score = *session.Score
	}
	record := &model.QuizResult{
		UserID:        session.UserID,
		SessionID:     session.ID,
		ScopeKey:      session.ScopeKey,
		Flow:          session.Policy.Flow,
		Score:         score,
		CorrectCount:  session.CorrectCount,
		QuestionCount: len(session.Questions),
		ElapsedMs:     session.ElapsedMs(time.Now()),
		Passed:        session.Score != nil && *session.Score >= model.PassThreshold,
		ServerScored:  session.ServerScored,
	}

	go func() {
		if err := m.Results.Create(record); err != nil {
			logger.Log.Error("failed to archive quiz result",
				zap.String("sessionId", record.SessionID),
				zap.Error(err))
		}
	}()
}

// Restart 在同一批题目上创建全新会话（新 ID、空作答、可答题状态），
// 旧会话被替换并丢弃。
func (m *SessionManager) Restart(sessionID string, userID uint) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	old := ms.session
	if old.UserID != userID {
		ms.mu.Unlock()
		return nil, util.ErrPermissionDenied
	}
	if old.State != model.StateCompleted && old.State != model.StateInProgress {
		ms.mu.Unlock()
		return nil, util.ErrInvalidTransition
	}
	questions := old.Questions
	policy := old.Policy
	scopeKey := old.ScopeKey
	ms.mu.Unlock()

	session := &model.AssessmentSession{
		ID:        model.GenerateUUID(),
		UserID:    userID,
		ScopeKey:  scopeKey,
		Policy:    policy,
		Questions: questions,
		Ledger:    make(model.AnswerLedger),
		State:     model.StateReady,
		CreatedAt: time.Now(),
	}

	newMS := &managedSession{
		session: session,
		timer:   NewTimerController(),
	}

	m.mu.Lock()
	m.discardLocked(sessionID)
	m.sessions[session.ID] = newMS
	m.active[activeKey(userID, scopeKey)] = session.ID
	m.mu.Unlock()

	monitoring.SessionCounter.WithLabelValues(policy.Flow, string(model.StateReady)).Inc()

	newMS.mu.Lock()
	defer newMS.mu.Unlock()
	if policy.AutoStart {
		m.startLocked(newMS)
	}
	return session.Snapshot(), nil
}

// Retry 拉题失败后重试；只允许从 errored 发起
func (m *SessionManager) Retry(sessionID string, userID uint, questionCount int) (*model.AssessmentSession, error) {
	ms, ok := m.lookup(sessionID)
	if !ok {
		return nil, util.ErrSessionNotFound
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	session := ms.session
	if session.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if session.State != model.StateErrored {
		return nil, util.ErrInvalidTransition
	}

	if questionCount <= 0 {
		questionCount = m.cfg.DefaultQuestionCount
	}
	session.State = model.StateLoading
	session.LoadError = ""
	epoch := ms.loadEpoch + 1

	go m.loadQuestions(session.ID, epoch, session.ScopeKey, questionCount)
	return session.Snapshot(), nil
}

// StartCleanup 周期回收完结/出错后超过保留时间的会话
func (m *SessionManager) StartCleanup() {
	interval := time.Duration(m.cfg.CompletedRetentionMins) * time.Minute
	ticker := time.NewTicker(interval / 4)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.cleanup(interval)
			case <-m.stop:
				return
			}
		}
	}()
}

func (m *SessionManager) cleanup(retention time.Duration) {
	cutoff := time.Now().Add(-retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	for id, ms := range m.sessions {
		ms.mu.Lock()
		session := ms.session
		expired := (session.State == model.StateCompleted || session.State == model.StateErrored) &&
			session.CompletedAt != nil && session.CompletedAt.Before(cutoff)
		if session.State == model.StateErrored && session.CompletedAt == nil {
			expired = session.CreatedAt.Before(cutoff)
		}
		ms.mu.Unlock()

		if expired {
			ms.timer.Cancel()
			delete(m.sessions, id)
			if m.active[activeKey(session.UserID, session.ScopeKey)] == id {
				delete(m.active, activeKey(session.UserID, session.ScopeKey))
			}
		}
	}
}

// Stop 停止后台清理
func (m *SessionManager) Stop() {
	close(m.stop)
}
