package service

import (
	"context"
	"errors"
	"fmt"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/gateway"
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/util"
	"learnmate_backend/pkg/logger"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

// fakeGateway 可编程的网关替身
type fakeGateway struct {
	mu sync.Mutex

	questions model.QuestionSet
	fetchErr  error
	fetchGate chan struct{} // 非 nil 时 FetchQuestions 阻塞到通道关闭

	submitResult *gateway.SubmissionResult
	submitErr    error
	submissions  []gateway.SubmissionRequest

	remoteProgress *model.ProgressRecord
	progressErr    error
	writeErr       error
	writes         []*model.ProgressRecord
}

func (f *fakeGateway) FetchQuestions(ctx context.Context, scopeKey string, count int) (model.QuestionSet, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return append(model.QuestionSet(nil), f.questions...), nil
}

func (f *fakeGateway) SubmitAssessment(ctx context.Context, req gateway.SubmissionRequest) (*gateway.SubmissionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, req)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return f.submitResult, nil
}

func (f *fakeGateway) FetchProgress(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return nil, f.progressErr
	}
	if f.remoteProgress == nil {
		return model.NewProgressRecord(scopeKey), nil
	}
	return f.remoteProgress.Clone(), nil
}

func (f *fakeGateway) WriteProgress(ctx context.Context, userKey string, record *model.ProgressRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return f.writeErr
	}
	f.writes = append(f.writes, record.Clone())
	return nil
}

func (f *fakeGateway) submissionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submissions)
}

// questionSet 构造 n 道题，correct 给出每题的正确选项下标
func questionSet(correct ...int) model.QuestionSet {
	qs := make(model.QuestionSet, 0, len(correct))
	for i, c := range correct {
		c := c
		qs = append(qs, model.Question{
			ID:                 fmt.Sprintf("q%d", i+1),
			PromptText:         fmt.Sprintf("question %d", i+1),
			Options:            []string{"A", "B", "C", "D"},
			CorrectOptionIndex: &c,
			Difficulty:         model.DifficultyMedium,
			TopicRef:           "arrays",
		})
	}
	return qs
}

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		DefaultQuestionCount:   10,
		QuestionSeconds:        300,
		SessionSeconds:         1800,
		ProgressRetrySeconds:   60,
		CompletedRetentionMins: 60,
	}
}

func newTestManager(gw *fakeGateway) *SessionManager {
	questions := NewQuestionService(gw, nil)
	return NewSessionManager(questions, gw, nil, nil, testSessionConfig())
}

func waitForState(t *testing.T, m *SessionManager, sessionID string, userID uint, state model.LifecycleState) *model.AssessmentSession {
	t.Helper()
	var session *model.AssessmentSession
	require.Eventually(t, func() bool {
		s, err := m.Get(sessionID, userID)
		if err != nil {
			return false
		}
		session = s
		return s.State == state
	}, 2*time.Second, 5*time.Millisecond)
	return session
}

func answer(option int) *int {
	return &option
}

func TestCreateSessionReachesInProgress(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0, 1)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 2, 0)
	assert.Equal(t, model.StateLoading, created.State)

	session := waitForState(t, m, created.ID, 1, model.StateInProgress)
	assert.Equal(t, 0, session.CurrentIndex)
	assert.NotNil(t, session.StartedAt)
}

func TestScoreCountsExactMatchesOverGradable(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(1, 0, 2)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 3, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(1), "")
	require.NoError(t, err)
	_, err = m.Advance(created.ID, 1)
	require.NoError(t, err)
	_, err = m.RecordAnswer(created.ID, 1, 1, answer(1), "") // 错答
	require.NoError(t, err)
	_, err = m.Advance(created.ID, 1)
	require.NoError(t, err)
	_, err = m.RecordAnswer(created.ID, 1, 2, answer(2), "")
	require.NoError(t, err)

	session, err := m.Finish(created.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, model.StateCompleted, session.State)
	require.NotNil(t, session.Score)
	assert.InDelta(t, 2.0/3.0, *session.Score, 1e-9)
	assert.Equal(t, 2, session.CorrectCount)
}

func TestEmptyQuestionSetCompletesWithoutScore(t *testing.T) {
	gw := &fakeGateway{questions: model.QuestionSet{}}
	m := newTestManager(gw)

	created := m.CreateSession(1, "empty-topic", model.FlowTopicQuiz, 5, 0)
	session := waitForState(t, m, created.ID, 1, model.StateCompleted)

	assert.Nil(t, session.Score)
	assert.Empty(t, session.LoadError)
	assert.Len(t, session.Questions, 0)
}

func TestLoadFailureErrorsAndRetryRecovers(t *testing.T) {
	gw := &fakeGateway{fetchErr: errors.New("gateway down")}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 2, 0)
	session := waitForState(t, m, created.ID, 1, model.StateErrored)
	assert.Contains(t, session.LoadError, "gateway down")

	gw.mu.Lock()
	gw.fetchErr = nil
	gw.questions = questionSet(0)
	gw.mu.Unlock()

	_, err := m.Retry(created.ID, 1, 1)
	require.NoError(t, err)

	session = waitForState(t, m, created.ID, 1, model.StateInProgress)
	assert.Empty(t, session.LoadError)
	assert.Len(t, session.Questions, 1)
}

func TestRetryOnlyFromErrored(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.Retry(created.ID, 1, 1)
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestAdvanceRequiresAnswer(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0, 1)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 2, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.Advance(created.ID, 1)
	assert.ErrorIs(t, err, ErrAnswerRequired)

	_, err = m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)

	session, err := m.Advance(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, session.CurrentIndex)
}

func TestAdvanceAtLastQuestionIsNoop(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)

	session, err := m.Advance(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, session.CurrentIndex)
	assert.Equal(t, model.StateInProgress, session.State)
}

func TestRetreatAtFirstQuestionIsNoop(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0, 1)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 2, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	session, err := m.Retreat(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, session.CurrentIndex)
}

func TestKnowledgeCheckRequiresExplicitStartAndAllAnswered(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0, 1)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowKnowledgeCheck, 2, 0)
	session := waitForState(t, m, created.ID, 1, model.StateReady)
	assert.Nil(t, session.StartedAt)

	session, err := m.Start(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StateInProgress, session.State)
	// 整场倒计时生效
	assert.Greater(t, session.RemainingSeconds(time.Now()), 0)

	_, err = m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)

	_, err = m.Finish(created.ID, 1)
	assert.ErrorIs(t, err, ErrUnansweredQuestions)

	_, err = m.RecordAnswer(created.ID, 1, 1, answer(1), "")
	require.NoError(t, err)

	session, err = m.Finish(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, session.State)
}

func TestFinishIsIdempotent(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)

	first, err := m.Finish(created.ID, 1)
	require.NoError(t, err)
	second, err := m.Finish(created.ID, 1)
	require.NoError(t, err)

	assert.Equal(t, first.CompletedAt.UnixNano(), second.CompletedAt.UnixNano())

	// 重复交卷不会重复上报
	require.Eventually(t, func() bool {
		return gw.submissionCount() == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, gw.submissionCount())
}

func TestRecordAnswerRejectedAfterCompletion(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)
	_, err = m.Finish(created.ID, 1)
	require.NoError(t, err)

	_, err = m.RecordAnswer(created.ID, 1, 0, answer(1), "")
	assert.ErrorIs(t, err, util.ErrInvalidTransition)
}

func TestRestartCreatesFreshSessionWithSameQuestions(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0, 1)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 2, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)

	restarted, err := m.Restart(created.ID, 1)
	require.NoError(t, err)

	assert.NotEqual(t, created.ID, restarted.ID)
	assert.Len(t, restarted.Questions, 2)
	assert.Empty(t, restarted.Ledger)
	assert.Nil(t, restarted.Score)

	// 旧会话已被丢弃
	_, err = m.Get(created.ID, 1)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestNewSessionSupersedesInFlightLoad(t *testing.T) {
	gate := make(chan struct{})
	gw := &fakeGateway{questions: questionSet(0), fetchGate: gate}
	m := newTestManager(gw)

	first := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)

	// 第二个会话解除拉题阻塞，两个在途结果只有后者生效
	gw.mu.Lock()
	gw.fetchGate = nil
	gw.mu.Unlock()
	second := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	close(gate)

	waitForState(t, m, second.ID, 1, model.StateInProgress)

	_, err := m.Get(first.ID, 1)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)
}

func TestServerComputedScoreOverridesLocal(t *testing.T) {
	serverScore := 0.5
	gw := &fakeGateway{
		questions:    questionSet(0),
		submitResult: &gateway.SubmissionResult{Score: &serverScore, ServerComputed: true},
	}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)
	session, err := m.Finish(created.ID, 1)
	require.NoError(t, err)

	// 本地判分先行
	require.NotNil(t, session.Score)
	assert.InDelta(t, 1.0, *session.Score, 1e-9)

	require.Eventually(t, func() bool {
		s, err := m.Get(created.ID, 1)
		return err == nil && s.ServerScored && s.Score != nil && *s.Score == serverScore
	}, time.Second, 5*time.Millisecond)
}

func TestSubmissionFailureKeepsLocalResult(t *testing.T) {
	gw := &fakeGateway{
		questions: questionSet(0),
		submitErr: errors.New("gateway down"),
	}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 0, answer(0), "")
	require.NoError(t, err)
	_, err = m.Finish(created.ID, 1)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return gw.submissionCount() == 1
	}, time.Second, 5*time.Millisecond)

	session, err := m.Get(created.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StateCompleted, session.State)
	require.NotNil(t, session.Score)
	assert.False(t, session.ServerScored)
}

func TestSessionOwnershipEnforced(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.Get(created.ID, 2)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
	_, err = m.Finish(created.ID, 2)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestAnswerIndexOutOfRange(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	waitForState(t, m, created.ID, 1, model.StateInProgress)

	_, err := m.RecordAnswer(created.ID, 1, 5, answer(0), "")
	assert.ErrorIs(t, err, ErrQuestionIndexOutOfRange)
}

func TestTopicQuizHasNoCountdown(t *testing.T) {
	gw := &fakeGateway{questions: questionSet(0)}
	m := newTestManager(gw)

	created := m.CreateSession(1, "arrays", model.FlowTopicQuiz, 1, 0)
	session := waitForState(t, m, created.ID, 1, model.StateInProgress)

	assert.Equal(t, -1, session.RemainingSeconds(time.Now()))
}
