package handlers

import (
	"sync"
	"time"

	"excel-translator-web/models"
)

const defaultMaxEvents = 64

// ProgressEvent 任务进度事件，按 Seq 递增
type ProgressEvent struct {
	Seq       int64                   `json:"seq"`
	Timestamp time.Time               `json:"timestamp"`
	TaskID    string                  `json:"taskId"`
	Status    models.TaskStatus       `json:"status"`
	Progress  float64                 `json:"progress"`
	Pairs     []models.TranslatedPair `json:"pairs"`
	Error     string                  `json:"error,omitempty"`
}

// EventBus 保存单个任务最近的事件，支持增量读取
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []ProgressEvent
	changed   chan struct{}
}

// NewEventBus 创建有界事件缓冲
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = defaultMaxEvents
	}
	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]ProgressEvent, 0, maxEvents),
		changed:   make(chan struct{}),
	}
}

// Publish 追加事件并分配序号，唤醒等待中的订阅者
func (b *EventBus) Publish(event ProgressEvent) ProgressEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]ProgressEvent(nil), b.events[trim:]...)
	}

	close(b.changed)
	b.changed = make(chan struct{})
	return event
}

// Since 返回序号大于 seq 的事件
func (b *EventBus) Since(seq int64) []ProgressEvent {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]ProgressEvent, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// Changed 返回在下一次 Publish 时关闭的通道
//
// 先取通道再调用 Since，避免漏掉两者之间发布的事件。
func (b *EventBus) Changed() <-chan struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.changed
}
