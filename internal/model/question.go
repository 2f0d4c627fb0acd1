package model

type DifficultyTier string

const (
	DifficultyEasy   DifficultyTier = "easy"
	DifficultyMedium DifficultyTier = "medium"
	DifficultyHard   DifficultyTier = "hard"
)

// Question 单个题目。拉取后不再修改。
// CorrectOptionIndex 为 nil 表示主观题（面试/简答），由远端评分。
type Question struct {
	ID                 string         `json:"id"`
	PromptText         string         `json:"promptText"`
	Options            []string       `json:"options"`
	CorrectOptionIndex *int           `json:"correctOptionIndex,omitempty"`
	Difficulty         DifficultyTier `json:"difficulty"`
	TopicRef           string         `json:"topicRef"`
	Explanation        string         `json:"explanation,omitempty"`
}

// Gradable 本地能否判分
func (q Question) Gradable() bool {
	return q.CorrectOptionIndex != nil
}

// QuestionSet 一次评估会话持有的有序题目序列，长度可以为 0（该范围暂无可测内容）
type QuestionSet []Question

func (qs QuestionSet) GradableCount() int {
	n := 0
	for _, q := range qs {
		if q.Gradable() {
			n++
		}
	}
	return n
}
