package history

import (
	"context"

	"github.com/susalert/susalert/internal/logger"
	"github.com/susalert/susalert/pkg/encounter"
	"github.com/susalert/susalert/pkg/monitor"
)

// Recorder 把监控更新写入历史库
type Recorder struct {
	store *Store
	demo  bool
	// isDemo 非空时会话开始时以它为准，否则取最近一次状态快照
	isDemo func() bool
	log    *logger.Logger
}

// NewRecorder 创建记录器
func NewRecorder(store *Store) *Recorder {
	return &Recorder{store: store, log: logger.Named("history")}
}

// WithDemoSource 设置演示模式的查询函数
func (r *Recorder) WithDemoSource(fn func() bool) *Recorder {
	r.isDemo = fn
	return r
}

// Run 消费更新直到 ctx 结束或通道关闭
func (r *Recorder) Run(ctx context.Context, updates <-chan monitor.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				return
			}
			if err := r.Handle(ctx, u); err != nil {
				r.log.Warn("写入历史失败: %v", err)
			}
		}
	}
}

// Handle 处理单条更新
func (r *Recorder) Handle(ctx context.Context, u monitor.Update) error {
	switch u.Kind {
	case monitor.UpdateState:
		if u.Snapshot != nil {
			r.demo = u.Snapshot.Demo
		}
	case monitor.UpdateSession:
		tr := u.Transition
		if tr == nil {
			return nil
		}
		switch tr.Kind {
		case encounter.TransitionStarted:
			demo := r.demo
			if r.isDemo != nil {
				demo = r.isDemo()
			}
			return r.store.SessionStarted(ctx, tr.SessionID, tr.At, demo)
		case encounter.TransitionEnded:
			return r.store.SessionEnded(ctx, tr.SessionID, tr.At, string(tr.Reason))
		}
	case monitor.UpdateObservation:
		tr := u.Transition
		if tr == nil || tr.Occurrence == nil {
			return nil
		}
		return r.store.RecordObservation(ctx, Observation{
			SessionID:  tr.SessionID,
			MechanicID: tr.Occurrence.Entry.ID,
			Cycle:      tr.Occurrence.Cycle,
			Index:      tr.Occurrence.Index,
			Predicted:  tr.Occurrence.Predicted,
			Observed:   tr.At,
		})
	case monitor.UpdateAlert:
		if u.Alert != nil {
			return r.store.RecordAlert(ctx, *u.Alert)
		}
	}
	return nil
}
