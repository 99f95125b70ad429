package translator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"excel-translator-web/models"
)

const (
	DefaultBatchSize   = 10
	DefaultDelay       = 1000 * time.Millisecond
	DefaultPlaceholder = "[Translation failed]"
)

// ErrAlreadyRunning 同一个处理器不能并发运行
var ErrAlreadyRunning = errors.New("批处理正在运行")

// RunState 批处理运行状态: idle -> running -> completed | aborted
type RunState string

const (
	RunStateIdle      RunState = "idle"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateAborted   RunState = "aborted"
)

// BatchConfig 批处理配置
type BatchConfig struct {
	BatchSize   int           `json:"batchSize"`
	Delay       time.Duration `json:"delay"`
	Placeholder string        `json:"placeholder"`
}

// DefaultBatchConfig 默认配置：每批 10 条，每次请求后等待 1 秒
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		BatchSize:   DefaultBatchSize,
		Delay:       DefaultDelay,
		Placeholder: DefaultPlaceholder,
	}
}

// BatchResult 批处理结果
type BatchResult struct {
	Pairs     []models.TranslatedPair
	State     RunState
	Attempted int
	Failed    int // 使用占位译文的条数
}

// BatchProcessor 按批次顺序翻译文本，每次只发一个请求
type BatchProcessor struct {
	Client Translator
	Config BatchConfig
	Logger *TaskLogger

	sleep func(ctx context.Context, d time.Duration) error

	mu         sync.RWMutex
	state      RunState
	batchIndex int
	itemIndex  int
}

// NewBatchProcessor 创建批处理器
func NewBatchProcessor(client Translator, config BatchConfig, logger *TaskLogger) *BatchProcessor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.Delay < 0 {
		config.Delay = 0
	}
	if config.Placeholder == "" {
		config.Placeholder = DefaultPlaceholder
	}
	if logger == nil {
		logger = NewTaskLogger(nil, "-")
	}

	return &BatchProcessor{
		Client: client,
		Config: config,
		Logger: logger,
		sleep:  sleepContext,
		state:  RunStateIdle,
	}
}

// State 返回当前状态及正在处理的批次/条目位置
func (bp *BatchProcessor) State() (RunState, int, int) {
	bp.mu.RLock()
	defer bp.mu.RUnlock()
	return bp.state, bp.batchIndex, bp.itemIndex
}

func (bp *BatchProcessor) setState(state RunState) {
	bp.mu.Lock()
	bp.state = state
	bp.mu.Unlock()
}

func (bp *BatchProcessor) setPosition(batch, item int) {
	bp.mu.Lock()
	bp.batchIndex = batch
	bp.itemIndex = item
	bp.mu.Unlock()
}

// SplitBatches 将输入切分为连续的批次，最后一批可能不足 size
func SplitBatches(texts []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := make([][]string, 0, (len(texts)+size-1)/size)
	for start := 0; start < len(texts); start += size {
		end := start + size
		if end > len(texts) {
			end = len(texts)
		}
		batches = append(batches, texts[start:end])
	}
	return batches
}

// Process 顺序翻译全部文本
//
// 每批完成后调用 onProgress，携带进度和截至目前的全部结果。
// 非配额错误使用占位译文并继续；配额错误立即终止整个运行，
// 已完成的结果随错误一起返回。结束时最后一次进度总是 100。
func (bp *BatchProcessor) Process(ctx context.Context, texts []string, onProgress func(models.ProgressState)) (BatchResult, error) {
	bp.mu.Lock()
	if bp.state == RunStateRunning {
		bp.mu.Unlock()
		return BatchResult{State: RunStateRunning}, ErrAlreadyRunning
	}
	bp.state = RunStateRunning
	bp.batchIndex, bp.itemIndex = 0, 0
	bp.mu.Unlock()

	started := time.Now()
	total := len(texts)
	pairs := make([]models.TranslatedPair, 0, total)
	lastProgress := -1.0

	report := func(progress float64) {
		if progress > 100 {
			progress = 100
		}
		lastProgress = progress
		if onProgress != nil {
			snapshot := make([]models.TranslatedPair, len(pairs))
			copy(snapshot, pairs)
			onProgress(models.ProgressState{Progress: progress, Pairs: snapshot})
		}
	}

	var (
		runErr    error
		attempted int
		failed    int
	)

	batches := SplitBatches(texts, bp.Config.BatchSize)
	bp.Logger.Info("开始批量翻译", map[string]interface{}{
		"条目数": total,
		"批次数": len(batches),
	})

run:
	for b, batch := range batches {
		for i, text := range batch {
			bp.setPosition(b, i)
			index := b*bp.Config.BatchSize + i

			translated, err := bp.Client.Translate(ctx, text)
			attempted++
			if err != nil {
				if errors.Is(err, ErrQuotaExceeded) {
					bp.Logger.Error("配额已用尽，停止翻译", err, map[string]interface{}{
						"序号": index + 1,
					})
					runErr = err
					break run
				}
				if ctxErr := ctx.Err(); ctxErr != nil {
					runErr = fmt.Errorf("翻译已取消: %w", ctxErr)
					break run
				}
				bp.Logger.Warn("翻译失败，使用占位译文", map[string]interface{}{
					"序号": index + 1,
					"错误": err.Error(),
				})
				translated = bp.Config.Placeholder
				failed++
			} else {
				bp.Logger.LogTranslation(index, total, text, translated)
			}

			pairs = append(pairs, models.TranslatedPair{Original: text, Translated: translated})

			if attempted < total {
				if err := bp.sleep(ctx, bp.Config.Delay); err != nil {
					runErr = fmt.Errorf("翻译已取消: %w", err)
					break run
				}
			}
		}

		progress := float64(attempted*100) / float64(total)
		report(progress)
		bp.Logger.LogBatch(b, len(batches), lastProgress)
	}

	if lastProgress < 100 {
		report(100)
	}

	state := RunStateCompleted
	if runErr != nil {
		state = RunStateAborted
	}
	bp.setState(state)

	bp.Logger.LogOperationTiming("批量翻译", time.Since(started), map[string]interface{}{
		"状态":   string(state),
		"已处理":  attempted,
		"占位译文": failed,
		"结果数":  len(pairs),
	})

	return BatchResult{
		Pairs:     pairs,
		State:     state,
		Attempted: attempted,
		Failed:    failed,
	}, runErr
}

// UserMessage 面向用户的错误信息
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrQuotaExceeded):
		return "API 配额已用尽，翻译已停止。已完成的结果已保留，可以导出。"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "翻译已取消，已完成的结果已保留。"
	default:
		return "翻译失败: " + err.Error()
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
