package service

import (
	"learnmate_backend/internal/model"
	"learnmate_backend/internal/repository"
	"learnmate_backend/pkg/logger"
	"time"

	"go.uber.org/zap"
)

// 各动作的积分值
var pointsConfig = map[string]int{
	"topic_completed": 10,
	"quiz_completed":  15,
	"quiz_passed":     25,
	"daily_login":     5,
}

// GamificationService 积分、等级、连续学习天数和徽章
type GamificationService struct {
	Repo *repository.GamificationRepository
}

func NewGamificationService(repo *repository.GamificationRepository) *GamificationService {
	return &GamificationService{Repo: repo}
}

// BadgeProgress 徽章及其达成进度
type BadgeProgress struct {
	Badge    model.Badge `json:"badge"`
	Earned   bool        `json:"earned"`
	EarnedAt *time.Time  `json:"earnedAt,omitempty"`
	Progress float64     `json:"progress"` // 0~1
}

// GamificationData 用户游戏化总览
type GamificationData struct {
	Stats  *model.UserStats `json:"stats"`
	Badges []BadgeProgress  `json:"badges"`
}

// LeaderboardEntry 积分榜条目
type LeaderboardEntry struct {
	Rank        int  `json:"rank"`
	UserID      uint `json:"userId"`
	TotalPoints int  `json:"totalPoints"`
	Level       int  `json:"level"`
	BadgeCount  int  `json:"badgeCount"`
}

// AddPoints 加积分和经验；经验溢出时升级，每级所需经验按 1.5 倍递增
func (s *GamificationService) AddPoints(userID uint, points int) (*model.UserStats, error) {
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return nil, err
	}

	applyExperience(stats, points)
	stats.LastActivity = time.Now()
	if err := s.Repo.SaveUserStats(stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// UpdateStudyStreak 按自然日更新连续学习天数：
// 隔 1 天 +1，同一天不变，断档重置为 1
func (s *GamificationService) UpdateStudyStreak(userID uint) (*model.UserStats, error) {
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return nil, err
	}

	advanceStreak(stats, time.Now())
	if err := s.Repo.SaveUserStats(stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// OnQuizCompleted 测验完结钩子：计数、积分、连续天数、徽章判定
func (s *GamificationService) OnQuizCompleted(userID uint, scopeKey string, passed bool) error {
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return err
	}

	stats.QuizzesTaken++
	if passed {
		stats.QuizzesPassed++
	}
	if err := s.Repo.SaveUserStats(stats); err != nil {
		return err
	}

	points := pointsConfig["quiz_completed"]
	if passed {
		points += pointsConfig["quiz_passed"]
	}
	if _, err := s.AddPoints(userID, points); err != nil {
		return err
	}
	if _, err := s.UpdateStudyStreak(userID); err != nil {
		return err
	}

	return s.CheckBadges(userID)
}

// OnTopicCompleted 主题完成钩子
func (s *GamificationService) OnTopicCompleted(userID uint, scopeKey string) error {
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return err
	}

	stats.TopicsCompleted++
	if err := s.Repo.SaveUserStats(stats); err != nil {
		return err
	}

	if _, err := s.AddPoints(userID, pointsConfig["topic_completed"]); err != nil {
		return err
	}
	if _, err := s.UpdateStudyStreak(userID); err != nil {
		return err
	}

	return s.CheckBadges(userID)
}

// CheckBadges 判定并幂等授予所有达成条件的徽章。
// 授予本身可能满足 badge_collector 这类徽章条件，所以最多跑两轮。
func (s *GamificationService) CheckBadges(userID uint) error {
	for pass := 0; pass < 2; pass++ {
		awarded, err := s.checkBadgesOnce(userID)
		if err != nil {
			return err
		}
		if !awarded {
			return nil
		}
	}
	return nil
}

func (s *GamificationService) checkBadgesOnce(userID uint) (bool, error) {
	badges, err := s.Repo.ListBadges()
	if err != nil {
		return false, err
	}
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return false, err
	}
	badgeCount, err := s.Repo.CountUserBadges(userID)
	if err != nil {
		return false, err
	}

	awardedAny := false
	for _, badge := range badges {
		if !criteriaMet(stats, int(badgeCount), badge.Criteria) {
			continue
		}
		awarded, err := s.Repo.AwardBadge(userID, badge.ID)
		if err != nil {
			return awardedAny, err
		}
		if !awarded {
			continue
		}

		awardedAny = true
		logger.Log.Info("badge awarded",
			zap.Uint("userId", userID),
			zap.String("badgeId", badge.ID))

		if badge.Points > 0 {
			if _, err := s.AddPoints(userID, badge.Points); err != nil {
				return awardedAny, err
			}
		}
	}
	return awardedAny, nil
}

// applyExperience 加积分和经验；经验溢出时连续升级
func applyExperience(stats *model.UserStats, points int) {
	stats.TotalPoints += points
	stats.Experience += points

	for stats.Experience >= stats.ExperienceToNext {
		stats.Experience -= stats.ExperienceToNext
		stats.Level++
		stats.ExperienceToNext = int(float64(stats.ExperienceToNext) * 1.5)
	}
}

// advanceStreak 按自然日推进连续学习天数
func advanceStreak(stats *model.UserStats, now time.Time) {
	lastDay := stats.LastActivity.Truncate(24 * time.Hour)
	today := now.Truncate(24 * time.Hour)
	daysDiff := int(today.Sub(lastDay).Hours() / 24)

	switch {
	case stats.CurrentStreak == 0:
		stats.CurrentStreak = 1
	case daysDiff == 1:
		stats.CurrentStreak++
	case daysDiff == 0:
		// 同一天重复学习不加天数
	default:
		stats.CurrentStreak = 1
	}

	if stats.CurrentStreak > stats.LongestStreak {
		stats.LongestStreak = stats.CurrentStreak
	}

	stats.LastActivity = now
}

// criteriaMet 所有非零条件均须满足
func criteriaMet(stats *model.UserStats, badgeCount int, c model.BadgeCriteria) bool {
	if c.TopicsCompleted > 0 && stats.TopicsCompleted < c.TopicsCompleted {
		return false
	}
	if c.QuizzesTaken > 0 && stats.QuizzesTaken < c.QuizzesTaken {
		return false
	}
	if c.QuizzesPassed > 0 && stats.QuizzesPassed < c.QuizzesPassed {
		return false
	}
	if c.StreakDays > 0 && stats.CurrentStreak < c.StreakDays && stats.LongestStreak < c.StreakDays {
		return false
	}
	if c.LongestStreak > 0 && stats.LongestStreak < c.LongestStreak {
		return false
	}
	if c.PointsEarned > 0 && stats.TotalPoints < c.PointsEarned {
		return false
	}
	if c.LevelReached > 0 && stats.Level < c.LevelReached {
		return false
	}
	if c.BadgesEarned > 0 && badgeCount < c.BadgesEarned {
		return false
	}
	return true
}

// GetUserGamificationData 统计数据加全部徽章及进度
func (s *GamificationService) GetUserGamificationData(userID uint) (*GamificationData, error) {
	stats, err := s.Repo.GetOrCreateUserStats(userID)
	if err != nil {
		return nil, err
	}
	badges, err := s.Repo.ListBadges()
	if err != nil {
		return nil, err
	}
	userBadges, err := s.Repo.ListUserBadges(userID)
	if err != nil {
		return nil, err
	}

	earnedAt := make(map[string]time.Time, len(userBadges))
	for _, ub := range userBadges {
		earnedAt[ub.BadgeID] = ub.EarnedAt
	}

	progress := make([]BadgeProgress, 0, len(badges))
	for _, badge := range badges {
		bp := BadgeProgress{Badge: badge}
		if at, ok := earnedAt[badge.ID]; ok {
			bp.Earned = true
			at := at
			bp.EarnedAt = &at
			bp.Progress = 1
		} else {
			bp.Progress = badgeProgress(stats, len(userBadges), badge.Criteria)
		}
		progress = append(progress, bp)
	}

	return &GamificationData{Stats: stats, Badges: progress}, nil
}

// badgeProgress 未获得徽章的达成比例，取各条件中最低的一项
func badgeProgress(stats *model.UserStats, badgeCount int, c model.BadgeCriteria) float64 {
	progress := 1.0
	ratio := func(have, need int) {
		if need <= 0 {
			return
		}
		r := float64(have) / float64(need)
		if r > 1 {
			r = 1
		}
		if r < progress {
			progress = r
		}
	}

	ratio(stats.TopicsCompleted, c.TopicsCompleted)
	ratio(stats.QuizzesTaken, c.QuizzesTaken)
	ratio(stats.QuizzesPassed, c.QuizzesPassed)
	ratio(stats.LongestStreak, c.StreakDays)
	ratio(stats.LongestStreak, c.LongestStreak)
	ratio(stats.TotalPoints, c.PointsEarned)
	ratio(stats.Level, c.LevelReached)
	ratio(badgeCount, c.BadgesEarned)
	return progress
}

// GetLeaderboard 积分榜
func (s *GamificationService) GetLeaderboard(limit int) ([]LeaderboardEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	top, err := s.Repo.TopByPoints(limit)
	if err != nil {
		return nil, err
	}

	entries := make([]LeaderboardEntry, 0, len(top))
	for i, stats := range top {
		badgeCount, err := s.Repo.CountUserBadges(stats.UserID)
		if err != nil {
			badgeCount = 0
		}
		entries = append(entries, LeaderboardEntry{
			Rank:        i + 1,
			UserID:      stats.UserID,
			TotalPoints: stats.TotalPoints,
			Level:       stats.Level,
			BadgeCount:  int(badgeCount),
		})
	}
	return entries, nil
}
