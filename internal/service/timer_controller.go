package service

import (
	"sync"
	"time"
)

// TimerController 会话倒计时调度器。每次 Arm 使上一次的计划失效，
// 超时回调与 Cancel 并发竞争时最多触发一次。
type TimerController struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
}

func NewTimerController() *TimerController {
	return &TimerController{}
}

// Arm 安排一次超时回调；duration <= 0 时只取消现有计划（纯计时模式）
func (t *TimerController) Arm(duration time.Duration, onExpire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++

	if duration <= 0 || onExpire == nil {
		return
	}

	gen := t.generation
	t.timer = time.AfterFunc(duration, func() {
		t.mu.Lock()
		stale := gen != t.generation
		t.mu.Unlock()
		if stale {
			return
		}
		onExpire()
	})
}

// Cancel 取消当前计划；已在途的回调会被代次校验拦下
func (t *TimerController) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.generation++
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
