package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/util"
	"net/http"
	"net/url"
	"time"
)

// Client 基于 HTTP 的网关实现
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(cfg config.GatewayConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// wireQuestion 上游题目负载，字段命名在不同接口版本间不一致，
// 这里兼容两套命名并在边界处归一化为 model.Question。
type wireQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	PromptText    string   `json:"promptText"`
	Options       []string `json:"options"`
	CorrectAnswer *int     `json:"correct_answer"`
	CorrectIndex  *int     `json:"correctAnswer"`
	Difficulty    string   `json:"difficulty"`
	Topic         string   `json:"topic"`
	Explanation   string   `json:"explanation"`
}

type wireQuestionList struct {
	Questions      []wireQuestion `json:"questions"`
	TotalQuestions int            `json:"total_questions"`
}

func normalizeQuestion(w wireQuestion, scopeKey string) (model.Question, error) {
	prompt := w.Question
	if prompt == "" {
		prompt = w.PromptText
	}
	if prompt == "" {
		return model.Question{}, util.ErrMalformedQuestion
	}

	correct := w.CorrectAnswer
	if correct == nil {
		correct = w.CorrectIndex
	}
	// 选项下标越界按主观题处理，交给远端评分
	if correct != nil && (*correct < 0 || *correct >= len(w.Options)) {
		correct = nil
	}

	difficulty := model.DifficultyTier(w.Difficulty)
	switch difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		difficulty = model.DifficultyMedium
	}

	topic := w.Topic
	if topic == "" {
		topic = scopeKey
	}

	return model.Question{
		ID:                 w.ID,
		PromptText:         prompt,
		Options:            w.Options,
		CorrectOptionIndex: correct,
		Difficulty:         difficulty,
		TopicRef:           topic,
		Explanation:        w.Explanation,
	}, nil
}

func (c *Client) FetchQuestions(ctx context.Context, scopeKey string, count int) (model.QuestionSet, error) {
	reqBody, _ := json.Marshal(map[string]interface{}{
		"topic":          scopeKey,
		"question_count": count,
	})

	body, err := c.post(ctx, "/quiz/questions", reqBody)
	if err != nil {
		return nil, err
	}

	var list wireQuestionList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrTransportFailure, err)
	}

	// 空集是合法结果（该范围没有题目），不是错误
	questions := make(model.QuestionSet, 0, len(list.Questions))
	for _, w := range list.Questions {
		q, err := normalizeQuestion(w, scopeKey)
		if err != nil {
			// 丢弃坏记录而不是让整次拉取失败
			continue
		}
		questions = append(questions, q)
	}
	return questions, nil
}

func (c *Client) SubmitAssessment(ctx context.Context, req SubmissionRequest) (*SubmissionResult, error) {
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, "/quiz/submit", reqBody)
	if err != nil {
		return nil, err
	}

	var result SubmissionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrTransportFailure, err)
	}
	return &result, nil
}

// wireProgress 上游进度负载（practice 接口的 solved_problems + stats 结构）
type wireProgress struct {
	SolvedProblems []int `json:"solved_problems"`
	Stats          struct {
		UniqueSolved     *int `json:"unique_solved"`
		TotalAttempted   int  `json:"total_attempted"`
		TotalSubmissions int  `json:"total_submissions"`
	} `json:"stats"`
}

func (c *Client) FetchProgress(ctx context.Context, userKey, scopeKey string) (*model.ProgressRecord, error) {
	endpoint := fmt.Sprintf("/progress?user=%s&scope=%s", url.QueryEscape(userKey), url.QueryEscape(scopeKey))
	body, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var wire wireProgress
	if err := json.Unmarshal(body, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrTransportFailure, err)
	}

	record := model.NewProgressRecord(scopeKey)
	for _, id := range wire.SolvedProblems {
		record.AddSolved(id)
	}
	record.AttemptsTotal = wire.Stats.TotalAttempted
	record.SubmissionsTotal = wire.Stats.TotalSubmissions
	record.LastSyncedAt = time.Now()
	return record, nil
}

func (c *Client) WriteProgress(ctx context.Context, userKey string, record *model.ProgressRecord) error {
	reqBody, err := json.Marshal(map[string]interface{}{
		"user":              userKey,
		"scope":             record.ScopeKey,
		"solved_problems":   record.SolvedProblemIDs,
		"total_attempted":   record.AttemptsTotal,
		"total_submissions": record.SubmissionsTotal,
	})
	if err != nil {
		return err
	}

	_, err = c.post(ctx, "/progress/update", reqBody)
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.do(req)
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrTransportFailure, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: gateway returned status %d: %s", util.ErrTransportFailure, resp.StatusCode, string(body))
	}
	return body, nil
}
