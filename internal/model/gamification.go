package model

import "time"

// UserStats 用户积分、等级、连续学习天数等聚合数据
// swagger:model UserStats
type UserStats struct {
	BaseModel
	UserID            uint      `gorm:"uniqueIndex;type:bigint unsigned" json:"userId"`
	TotalPoints       int       `gorm:"default:0" json:"totalPoints"`
	Level             int       `gorm:"default:1" json:"level"`
	Experience        int       `gorm:"default:0" json:"experience"`
	ExperienceToNext  int       `gorm:"default:100" json:"experienceToNextLevel"`
	CurrentStreak     int       `gorm:"default:0" json:"currentStreak"`
	LongestStreak     int       `gorm:"default:0" json:"longestStreak"`
	TopicsCompleted   int       `gorm:"default:0" json:"topicsCompleted"`
	QuizzesTaken      int       `gorm:"default:0" json:"quizzesTaken"`
	QuizzesPassed     int       `gorm:"default:0" json:"quizzesPassed"`
	LastActivity      time.Time `json:"lastActivity"`
}

func (UserStats) TableName() string {
	return "user_stats"
}

// BadgeCriteria 徽章获取条件；零值字段表示不作要求
type BadgeCriteria struct {
	Action          string `json:"action,omitempty"`
	TopicsCompleted int    `json:"topicsCompleted,omitempty"`
	QuizzesTaken    int    `json:"quizzesTaken,omitempty"`
	QuizzesPassed   int    `json:"quizzesPassed,omitempty"`
	StreakDays      int    `json:"streakDays,omitempty"`
	LongestStreak   int    `json:"longestStreak,omitempty"`
	PointsEarned    int    `json:"pointsEarned,omitempty"`
	LevelReached    int    `json:"levelReached,omitempty"`
	BadgesEarned    int    `json:"badgesEarned,omitempty"`
}

// swagger:model Badge
type Badge struct {
	ID          string        `gorm:"primaryKey;size:64" json:"id"`
	Name        string        `gorm:"size:255;not null" json:"name"`
	Description string        `gorm:"type:text" json:"description"`
	Icon        string        `gorm:"size:16" json:"icon"`
	Category    string        `gorm:"size:50" json:"category"`
	Rarity      string        `gorm:"size:20" json:"rarity"`
	Points      int           `gorm:"default:0" json:"points"`
	Criteria    BadgeCriteria `gorm:"serializer:json" json:"criteria"`
	CreatedAt   time.Time     `json:"createdAt"`
}

func (Badge) TableName() string {
	return "badges"
}

type UserBadge struct {
	BaseModel
	UserID   uint      `gorm:"index:idx_user_badge,unique;type:bigint unsigned" json:"userId"`
	BadgeID  string    `gorm:"index:idx_user_badge,unique;size:64" json:"badgeId"`
	EarnedAt time.Time `json:"earnedAt"`
}

func (UserBadge) TableName() string {
	return "user_badges"
}

// DefaultBadges 内置徽章定义
func DefaultBadges() []Badge {
	return []Badge{
		{ID: "first_topic", Name: "First Steps", Description: "Complete your first topic", Icon: "🎯", Category: "progress", Rarity: "common", Points: 10, Criteria: BadgeCriteria{Action: "topic_completed", TopicsCompleted: 1}},
		{ID: "topic_master", Name: "Topic Master", Description: "Complete 10 topics", Icon: "📚", Category: "progress", Rarity: "rare", Points: 50, Criteria: BadgeCriteria{TopicsCompleted: 10}},
		{ID: "first_quiz", Name: "Quiz Taker", Description: "Take your first quiz", Icon: "❓", Category: "quiz", Rarity: "common", Points: 15, Criteria: BadgeCriteria{Action: "quiz_completed", QuizzesTaken: 1}},
		{ID: "quiz_master", Name: "Quiz Master", Description: "Pass 10 quizzes", Icon: "🧠", Category: "quiz", Rarity: "epic", Points: 100, Criteria: BadgeCriteria{QuizzesPassed: 10}},
		{ID: "streak_3", Name: "Consistent Learner", Description: "Maintain a 3-day study streak", Icon: "🔥", Category: "streak", Rarity: "common", Points: 25, Criteria: BadgeCriteria{StreakDays: 3}},
		{ID: "streak_7", Name: "Week Warrior", Description: "Maintain a 7-day study streak", Icon: "⚡", Category: "streak", Rarity: "rare", Points: 75, Criteria: BadgeCriteria{StreakDays: 7}},
		{ID: "streak_30", Name: "Dedicated Scholar", Description: "Maintain a 30-day study streak", Icon: "💎", Category: "streak", Rarity: "legendary", Points: 300, Criteria: BadgeCriteria{StreakDays: 30}},
		{ID: "level_5", Name: "Getting Started", Description: "Reach level 5", Icon: "⭐", Category: "milestone", Rarity: "common", Points: 50, Criteria: BadgeCriteria{LevelReached: 5}},
		{ID: "level_10", Name: "Dedicated Learner", Description: "Reach level 10", Icon: "🌟", Category: "milestone", Rarity: "rare", Points: 100, Criteria: BadgeCriteria{LevelReached: 10}},
		{ID: "level_25", Name: "Knowledge Seeker", Description: "Reach level 25", Icon: "💫", Category: "milestone", Rarity: "epic", Points: 250, Criteria: BadgeCriteria{LevelReached: 25}},
		{ID: "first_badge", Name: "Achievement Hunter", Description: "Earn your first badge", Icon: "🎖️", Category: "special", Rarity: "common", Points: 20, Criteria: BadgeCriteria{BadgesEarned: 1}},
		{ID: "badge_collector", Name: "Badge Collector", Description: "Earn 10 badges", Icon: "🏅", Category: "special", Rarity: "epic", Points: 200, Criteria: BadgeCriteria{BadgesEarned: 10}},
	}
}
