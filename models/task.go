package models

import "time"

// TaskStatus 任务状态
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusAborted    TaskStatus = "aborted" // 配额耗尽提前终止，已翻译部分保留
	TaskStatusFailed     TaskStatus = "failed"
)

// IsTerminal 任务是否已结束
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusAborted || s == TaskStatusFailed
}

// TranslatedPair 原文/译文对，创建后不再修改
type TranslatedPair struct {
	Original   string `json:"original"`
	Translated string `json:"translated"`
}

// ProgressState 批次完成时的进度快照
type ProgressState struct {
	Progress float64          `json:"progress"` // 0-100
	Pairs    []TranslatedPair `json:"pairs"`
}

type TranslateTask struct {
	ID          string           `json:"id"`
	SessionID   string           `json:"-"`
	SourceFile  string           `json:"sourceFile"`
	Status      TaskStatus       `json:"status"`
	Progress    float64          `json:"progress"`
	Total       int              `json:"total"`
	Pairs       []TranslatedPair `json:"pairs"`
	Error       string           `json:"error,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	CompletedAt time.Time        `json:"completedAt,omitempty"`
}

// Snapshot 返回任务副本，Pairs 独立拷贝
func (t *TranslateTask) Snapshot() TranslateTask {
	cp := *t
	cp.Pairs = make([]TranslatedPair, len(t.Pairs))
	copy(cp.Pairs, t.Pairs)
	return cp
}

// ExportRequest 导出请求
type ExportRequest struct {
	FileName string           `json:"fileName"`
	Pairs    []TranslatedPair `json:"pairs"`
}
