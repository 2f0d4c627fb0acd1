package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"learnmate_backend/internal/config"
	"learnmate_backend/internal/model"
	"net/http"
	"strings"
)

// AIService 调用大模型生成题目，作为网关无题可拉时的兜底来源
type AIService struct {
	config config.AIConfig
}

func NewAIService(cfg config.AIConfig) *AIService {
	return &AIService{config: cfg}
}

func (s *AIService) Enabled() bool {
	return s.config.BaseURL != "" && s.config.APIKey != ""
}

type AIChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionRequest struct {
	Model    string          `json:"model"`
	Messages []AIChatMessage `json:"messages"`
}

type ChatCompletionResponse struct {
	Choices []struct {
		Message AIChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// aiQuestion 模型输出的题目结构，要求严格按此 JSON 返回
type aiQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation"`
	Difficulty    string   `json:"difficulty"`
}

// GenerateQuestions 按主题生成 count 道单选题。
// 模型输出不可解析时返回错误而不是半成品题目。
func (s *AIService) GenerateQuestions(ctx context.Context, scopeKey, seedText string, count int) (model.QuestionSet, error) {
	systemPrompt := "你是一个出题助手。根据给定主题生成单选题，只输出 JSON 数组，不要输出任何其他文字。" +
		"每个元素形如：{\"question\":\"...\",\"options\":[\"...\",\"...\",\"...\",\"...\"],\"correct_answer\":0,\"explanation\":\"...\",\"difficulty\":\"easy|medium|hard\"}"

	userPrompt := fmt.Sprintf("主题：%s\n题目数量：%d", scopeKey, count)
	if seedText != "" {
		userPrompt += fmt.Sprintf("\n参考材料：\n%s", seedText)
	}

	reqBody := ChatCompletionRequest{
		Model: s.config.Model,
		Messages: []AIChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", s.config.BaseURL+"/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("AI API error (status %d): %s", resp.StatusCode, string(body))
	}

	var result ChatCompletionResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("AI returned no choices")
	}

	return parseGeneratedQuestions(result.Choices[0].Message.Content, scopeKey)
}

func parseGeneratedQuestions(content, scopeKey string) (model.QuestionSet, error) {
	// 模型偶尔会包一层 Markdown 代码块
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var raw []aiQuestion
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("AI output is not valid question JSON: %w", err)
	}

	questions := make(model.QuestionSet, 0, len(raw))
	for i, q := range raw {
		if q.Question == "" || len(q.Options) < 2 {
			continue
		}
		if q.CorrectAnswer < 0 || q.CorrectAnswer >= len(q.Options) {
			continue
		}

		difficulty := model.DifficultyTier(q.Difficulty)
		switch difficulty {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
		default:
			difficulty = model.DifficultyMedium
		}

		correct := q.CorrectAnswer
		questions = append(questions, model.Question{
			ID:                 fmt.Sprintf("ai-%s-%d", model.GenerateUUID()[:8], i),
			PromptText:         q.Question,
			Options:            q.Options,
			CorrectOptionIndex: &correct,
			Difficulty:         difficulty,
			TopicRef:           scopeKey,
			Explanation:        q.Explanation,
		})
	}
	return questions, nil
}
