package gateway

import (
	"context"
	"encoding/json"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/util"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(config.GatewayConfig{
		BaseURL:        srv.URL,
		APIKey:         "test-key",
		RequestTimeout: 5 * time.Second,
	})
	return client, srv
}

func TestFetchQuestionsNormalizesWirePayload(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quiz/questions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "python:arrays", body["topic"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"questions": [
				{"id": "q1", "question": "What is a slice?", "options": ["A", "B", "C"], "correct_answer": 1, "difficulty": "easy", "explanation": "B it is"},
				{"id": "q2", "question": "Open ended", "options": [], "difficulty": "weird"},
				{"id": "q3", "question": "Out of range", "options": ["A", "B"], "correct_answer": 9},
				{"id": "bad", "options": ["A"]}
			],
			"total_questions": 4
		}`))
	})
	defer srv.Close()

	questions, err := client.FetchQuestions(context.Background(), "python:arrays", 4)
	require.NoError(t, err)
	require.Len(t, questions, 3)

	assert.Equal(t, "What is a slice?", questions[0].PromptText)
	require.NotNil(t, questions[0].CorrectOptionIndex)
	assert.Equal(t, 1, *questions[0].CorrectOptionIndex)
	assert.Equal(t, model.DifficultyEasy, questions[0].Difficulty)

	// 未知难度回落 medium，无正确答案按主观题处理
	assert.Equal(t, model.DifficultyMedium, questions[1].Difficulty)
	assert.Nil(t, questions[1].CorrectOptionIndex)
	assert.Equal(t, "python:arrays", questions[1].TopicRef)

	// 下标越界同样按主观题处理
	assert.Nil(t, questions[2].CorrectOptionIndex)
}

func TestFetchQuestionsEmptyListIsValid(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"questions": [], "total_questions": 0}`))
	})
	defer srv.Close()

	questions, err := client.FetchQuestions(context.Background(), "empty", 5)
	require.NoError(t, err)
	assert.NotNil(t, questions)
	assert.Len(t, questions, 0)
}

func TestFetchQuestionsErrorStatusIsTransportFailure(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	defer srv.Close()

	_, err := client.FetchQuestions(context.Background(), "python:arrays", 5)
	assert.ErrorIs(t, err, util.ErrTransportFailure)
}

func TestSubmitAssessmentReturnsServerScore(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quiz/submit", r.URL.Path)

		var req SubmissionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "s1", req.SessionID)
		assert.Len(t, req.Answers, 1)

		w.Write([]byte(`{"score": 0.75, "serverComputed": true}`))
	})
	defer srv.Close()

	option := 2
	result, err := client.SubmitAssessment(context.Background(), SubmissionRequest{
		SessionID: "s1",
		ScopeKey:  "python:arrays",
		UserID:    1,
		Answers:   []SubmittedAnswer{{QuestionID: "q1", SelectedOption: &option}},
	})
	require.NoError(t, err)
	assert.True(t, result.ServerComputed)
	require.NotNil(t, result.Score)
	assert.InDelta(t, 0.75, *result.Score, 1e-9)
}

func TestFetchProgressMapsSolvedProblemsAndStats(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/progress", r.URL.Path)
		assert.Equal(t, "u@test", r.URL.Query().Get("user"))
		assert.Equal(t, "python:arrays", r.URL.Query().Get("scope"))

		w.Write([]byte(`{
			"solved_problems": [3, 7, 3],
			"stats": {"unique_solved": 2, "total_attempted": 5, "total_submissions": 9}
		}`))
	})
	defer srv.Close()

	record, err := client.FetchProgress(context.Background(), "u@test", "python:arrays")
	require.NoError(t, err)

	// 重复的已解题在边界处去重
	assert.ElementsMatch(t, []int{3, 7}, record.SolvedProblemIDs)
	assert.Equal(t, 5, record.AttemptsTotal)
	assert.Equal(t, 9, record.SubmissionsTotal)
}

func TestWriteProgressSendsFullRecord(t *testing.T) {
	var got map[string]interface{}
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/progress/update", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`{}`))
	})
	defer srv.Close()

	record := model.NewProgressRecord("python:arrays")
	record.AddSolved(42)
	record.AttemptsTotal = 3
	record.SubmissionsTotal = 4

	require.NoError(t, client.WriteProgress(context.Background(), "u@test", record))
	assert.Equal(t, "u@test", got["user"])
	assert.Equal(t, "python:arrays", got["scope"])
	assert.Equal(t, float64(3), got["total_attempted"])
}
