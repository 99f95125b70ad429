package translator

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// TaskLogger 翻译任务日志记录器，每行带任务 ID
type TaskLogger struct {
	logger    *log.Logger
	taskID    string
	mutex     sync.Mutex
	debugMode bool
}

// NewTaskLogger 创建任务日志记录器，writer 为 nil 时写到标准日志输出
func NewTaskLogger(writer io.Writer, taskID string) *TaskLogger {
	if writer == nil {
		writer = log.Writer()
	}

	return &TaskLogger{
		logger: log.New(writer, "", log.LstdFlags),
		taskID: taskID,
	}
}

// SetDebugMode 设置调试模式
func (l *TaskLogger) SetDebugMode(enabled bool) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	l.debugMode = enabled
}

// Debug 记录调试信息
func (l *TaskLogger) Debug(message string, data ...map[string]interface{}) {
	l.mutex.Lock()
	enabled := l.debugMode
	l.mutex.Unlock()
	if !enabled {
		return
	}
	l.log(LogLevelDebug, message, data...)
}

// Info 记录信息
func (l *TaskLogger) Info(message string, data ...map[string]interface{}) {
	l.log(LogLevelInfo, message, data...)
}

// Warn 记录警告
func (l *TaskLogger) Warn(message string, data ...map[string]interface{}) {
	l.log(LogLevelWarn, message, data...)
}

// Error 记录错误
func (l *TaskLogger) Error(message string, err error, data ...map[string]interface{}) {
	logData := make(map[string]interface{})
	if len(data) > 0 {
		for k, v := range data[0] {
			logData[k] = v
		}
	}
	if err != nil {
		logData["错误"] = err.Error()
	}
	l.log(LogLevelError, message, logData)
}

func (l *TaskLogger) log(level LogLevel, message string, data ...map[string]interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	logMessage := fmt.Sprintf("[%s] [任务 %s] %s", levelString(level), l.taskID, message)

	// 字段按键排序，保证输出稳定
	if len(data) > 0 && data[0] != nil {
		keys := make([]string, 0, len(data[0]))
		for key := range data[0] {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			logMessage += fmt.Sprintf(" | %s: %v", key, data[0][key])
		}
	}

	l.logger.Println(logMessage)
}

func levelString(level LogLevel) string {
	switch level {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogTranslation 记录单条翻译
func (l *TaskLogger) LogTranslation(index, total int, original, translated string) {
	l.Debug("文本翻译", map[string]interface{}{
		"序号": fmt.Sprintf("%d/%d", index+1, total),
		"原文": truncateString(original, 50),
		"译文": truncateString(translated, 50),
	})
}

// LogBatch 记录批次完成
func (l *TaskLogger) LogBatch(batch, batches int, progress float64) {
	l.Info("批次完成", map[string]interface{}{
		"批次": fmt.Sprintf("%d/%d", batch+1, batches),
		"进度": fmt.Sprintf("%.1f%%", progress),
	})
}

// LogOperationTiming 记录操作耗时
func (l *TaskLogger) LogOperationTiming(operation string, duration time.Duration, data ...map[string]interface{}) {
	logData := map[string]interface{}{
		"操作": operation,
		"耗时": duration.Round(time.Millisecond).String(),
	}

	if len(data) > 0 && data[0] != nil {
		for k, v := range data[0] {
			logData[k] = v
		}
	}

	l.Info("操作耗时统计", logData)
}

// truncateString 按字符截断
func truncateString(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
