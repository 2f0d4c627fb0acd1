package model

// QuizResult 已完成会话的归档记录，供统计和徽章判定使用
// swagger:model QuizResult
type QuizResult struct {
	BaseModel
	UserID        uint    `gorm:"index;type:bigint unsigned" json:"userId"`
	SessionID     string  `gorm:"size:36;index" json:"sessionId"`
	ScopeKey      string  `gorm:"size:255;index" json:"scopeKey"`
	Flow          string  `gorm:"size:50" json:"flow"`
	Score         float64 `gorm:"default:0" json:"score"` // 0~1
	CorrectCount  int     `gorm:"default:0" json:"correctCount"`
	QuestionCount int     `gorm:"default:0" json:"questionCount"`
	ElapsedMs     int64   `gorm:"default:0" json:"elapsedMs"`
	Passed        bool    `gorm:"default:false" json:"passed"`
	ServerScored  bool    `gorm:"default:false" json:"serverScored"`
}

func (QuizResult) TableName() string {
	return "quiz_results"
}

// PassThreshold 及格线（70%）
const PassThreshold = 0.7
