package handlers

import (
	"sort"
	"sync"

	"excel-translator-web/models"
)

type taskEntry struct {
	task   *models.TranslateTask
	events *EventBus
}

// TaskManager 管理所有会话的任务，进程退出后全部丢失
type TaskManager struct {
	// sessionID -> taskID -> task
	userTasks map[string]map[string]*taskEntry
	mu        sync.RWMutex

	// 已过期但仍有任务在运行的会话，任务结束后删除
	expired map[string]bool
}

// NewTaskManager 创建任务管理器
func NewTaskManager() *TaskManager {
	return &TaskManager{
		userTasks: make(map[string]map[string]*taskEntry),
		expired:   make(map[string]bool),
	}
}

// AddTask 为会话添加任务
func (tm *TaskManager) AddTask(sessionID string, task *models.TranslateTask) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.userTasks[sessionID] == nil {
		tm.userTasks[sessionID] = make(map[string]*taskEntry)
	}
	tm.userTasks[sessionID][task.ID] = &taskEntry{
		task:   task,
		events: NewEventBus(0),
	}
}

func (tm *TaskManager) entry(sessionID, taskID string) (*taskEntry, bool) {
	userTasks, exists := tm.userTasks[sessionID]
	if !exists {
		return nil, false
	}
	e, found := userTasks[taskID]
	return e, found
}

// GetTask 获取会话内任务的快照
func (tm *TaskManager) GetTask(sessionID, taskID string) (models.TranslateTask, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	e, found := tm.entry(sessionID, taskID)
	if !found {
		return models.TranslateTask{}, false
	}
	return e.task.Snapshot(), true
}

// Events 获取任务的事件总线
func (tm *TaskManager) Events(sessionID, taskID string) (*EventBus, bool) {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	e, found := tm.entry(sessionID, taskID)
	if !found {
		return nil, false
	}
	return e.events, true
}

// GetUserTasks 获取会话的所有任务，按创建时间排序
func (tm *TaskManager) GetUserTasks(sessionID string) []models.TranslateTask {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	userTasks := tm.userTasks[sessionID]
	tasks := make([]models.TranslateTask, 0, len(userTasks))
	for _, e := range userTasks {
		tasks = append(tasks, e.task.Snapshot())
	}
	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks
}

// UpdateTask 更新任务并发布一条进度事件
func (tm *TaskManager) UpdateTask(sessionID, taskID string, updateFn func(*models.TranslateTask)) bool {
	tm.mu.Lock()
	e, found := tm.entry(sessionID, taskID)
	if !found {
		tm.mu.Unlock()
		return false
	}
	updateFn(e.task)
	snapshot := e.task.Snapshot()
	if tm.expired[sessionID] && snapshot.Status.IsTerminal() {
		tm.removeEntry(sessionID, taskID)
	}
	tm.mu.Unlock()

	e.events.Publish(ProgressEvent{
		TaskID:   snapshot.ID,
		Status:   snapshot.Status,
		Progress: snapshot.Progress,
		Pairs:    snapshot.Pairs,
		Error:    snapshot.Error,
	})
	return true
}

// RemoveSession 删除会话已结束的任务，返回删除数量
//
// 仍在运行的任务保留到结束，结束时的最后一次 UpdateTask 会删除它。
func (tm *TaskManager) RemoveSession(sessionID string) int {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	removed := 0
	for taskID, e := range tm.userTasks[sessionID] {
		if e.task.Status.IsTerminal() {
			tm.removeEntry(sessionID, taskID)
			removed++
		}
	}
	if len(tm.userTasks[sessionID]) > 0 {
		tm.expired[sessionID] = true
	}
	return removed
}

// removeEntry 调用方需持有写锁
func (tm *TaskManager) removeEntry(sessionID, taskID string) {
	userTasks := tm.userTasks[sessionID]
	delete(userTasks, taskID)
	if len(userTasks) == 0 {
		delete(tm.userTasks, sessionID)
		delete(tm.expired, sessionID)
	}
}
