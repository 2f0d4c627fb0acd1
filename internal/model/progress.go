package model

import "time"

type SyncState string

const (
	SyncSynced  SyncState = "synced"
	SyncDirty   SyncState = "dirty"   // 本地有远端尚未确认的更新
	SyncSyncing SyncState = "syncing" // 补写进行中
)

// ProgressRecord 某个范围（主题或 语言+题目 组合）下的做题进度。
// 权威副本在远端，本地缓存按 scopeKey 存影子副本。
type ProgressRecord struct {
	ScopeKey         string    `json:"scopeKey"`
	SolvedProblemIDs []int     `json:"solvedProblemIds"`
	AttemptsTotal    int       `json:"attemptsTotal"`
	SubmissionsTotal int       `json:"submissionsTotal"`
	LastSyncedAt     time.Time `json:"lastSyncedAt"`
	SyncState        SyncState `json:"syncState"`
}

func NewProgressRecord(scopeKey string) *ProgressRecord {
	return &ProgressRecord{
		ScopeKey:         scopeKey,
		SolvedProblemIDs: []int{},
		SyncState:        SyncSynced,
	}
}

func (p *ProgressRecord) HasSolved(problemID int) bool {
	for _, id := range p.SolvedProblemIDs {
		if id == problemID {
			return true
		}
	}
	return false
}

// AddSolved 幂等加入已解集合；重复记录不增加数量
func (p *ProgressRecord) AddSolved(problemID int) bool {
	if p.HasSolved(problemID) {
		return false
	}
	p.SolvedProblemIDs = append(p.SolvedProblemIDs, problemID)
	return true
}

// SolvedCount 去重后的已解题数（按集合基数，不按解题事件数）
func (p *ProgressRecord) SolvedCount() int {
	seen := make(map[int]bool, len(p.SolvedProblemIDs))
	for _, id := range p.SolvedProblemIDs {
		seen[id] = true
	}
	return len(seen)
}

func (p *ProgressRecord) Clone() *ProgressRecord {
	cp := *p
	cp.SolvedProblemIDs = append([]int(nil), p.SolvedProblemIDs...)
	return &cp
}
