package analyzer

import (
	"go.uber.org/zap"
)

const (
	STAGE_FETCHING     = "fetching"
	STAGE_RATE_LIMITED = "rate_limited"
	STAGE_EXTRACTING   = "extracting"
	STAGE_RESOLVING    = "resolving"
	STAGE_MATCHING     = "matching"
	STAGE_AGGREGATING  = "aggregating"
	STAGE_COMPLETE     = "complete"
)

// ProgressEvent 长管线的进度事件
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// ProgressObserver 进度观察者，状态轮询与日志可各自挂一个
type ProgressObserver interface {
	OnProgress(event ProgressEvent)
}

// ProgressFunc 函数适配器
type ProgressFunc func(event ProgressEvent)

func (f ProgressFunc) OnProgress(event ProgressEvent) { f(event) }

// MultiObserver 扇出到多个观察者
type MultiObserver []ProgressObserver

func (m MultiObserver) OnProgress(event ProgressEvent) {
	for _, obs := range m {
		obs.OnProgress(event)
	}
}

// NewLogObserver 进度打到日志
func NewLogObserver(tl *zap.Logger) ProgressObserver {
	return ProgressFunc(func(event ProgressEvent) {
		tl.Debug("analysis progress",
			zap.String("stage", event.Stage),
			zap.Int("percent", event.Percent),
			zap.String("message", event.Message))
	})
}

// NopObserver 不关心进度时使用
var NopObserver ProgressObserver = ProgressFunc(func(ProgressEvent) {})
