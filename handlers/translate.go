package handlers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"excel-translator-web/middleware"
	"excel-translator-web/models"
	"excel-translator-web/spreadsheet"
	"excel-translator-web/translator"
)

// Handler 翻译相关的 HTTP 接口
type Handler struct {
	Tasks  *TaskManager
	Client translator.Translator
	Batch  translator.BatchConfig

	// LogWriter 任务日志输出，nil 时使用标准日志
	LogWriter io.Writer
	Debug     bool

	ctx context.Context // 服务生命周期，结束时中止后台任务
	wg  sync.WaitGroup
}

// NewHandler 创建处理器，ctx 结束时正在运行的任务会被中止
func NewHandler(ctx context.Context, tasks *TaskManager, client translator.Translator, batch translator.BatchConfig) *Handler {
	if tasks == nil {
		tasks = NewTaskManager()
	}
	return &Handler{
		Tasks:  tasks,
		Client: client,
		Batch:  batch,
		ctx:    ctx,
	}
}

// Register 注册 /api 路由
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.POST("/translate", h.TranslateHandler)
		api.GET("/status/:taskId", h.GetStatusHandler)
		api.GET("/events/:taskId", h.EventsHandler)
		api.GET("/download/:taskId", h.DownloadHandler)
		api.GET("/tasks", h.GetTasksHandler)
		api.POST("/export", h.ExportHandler)
	}
}

// Wait 等待所有后台任务结束
func (h *Handler) Wait() {
	h.wg.Wait()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// TranslateHandler 上传表格并启动翻译任务
func (h *Handler) TranslateHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "未找到上传文件"})
		return
	}

	if err := spreadsheet.CheckExtension(file.Filename); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件解析失败: " + err.Error()})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件解析失败: " + err.Error()})
		return
	}
	texts, err := spreadsheet.ReadFirstColumn(src)
	src.Close()
	if err != nil {
		log.Printf("[会话 %s] 解析文件 %s 失败: %v", shortID(sessionID), file.Filename, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "文件解析失败: " + err.Error()})
		return
	}

	taskID := uuid.New().String()
	task := &models.TranslateTask{
		ID:         taskID,
		SessionID:  sessionID,
		SourceFile: file.Filename,
		Status:     models.TaskStatusPending,
		Total:      len(texts),
		Pairs:      []models.TranslatedPair{},
		CreatedAt:  time.Now(),
	}
	h.Tasks.AddTask(sessionID, task)

	h.wg.Add(1)
	go h.processTranslation(sessionID, taskID, texts)

	c.JSON(http.StatusOK, gin.H{
		"taskId":  taskID,
		"total":   len(texts),
		"message": "翻译任务已创建",
	})
}

// processTranslation 后台运行批处理，是该任务进度和结果的唯一写入者
func (h *Handler) processTranslation(sessionID, taskID string, texts []string) {
	defer h.wg.Done()

	h.Tasks.UpdateTask(sessionID, taskID, func(t *models.TranslateTask) {
		t.Status = models.TaskStatusProcessing
	})

	log.Printf("[会话 %s][任务 %s] 开始处理翻译，共 %d 条", shortID(sessionID), taskID, len(texts))

	defer func() {
		if r := recover(); r != nil {
			h.Tasks.UpdateTask(sessionID, taskID, func(t *models.TranslateTask) {
				t.Status = models.TaskStatusFailed
				t.Error = fmt.Sprintf("翻译过程出错: %v", r)
				t.CompletedAt = time.Now()
			})
			log.Printf("[会话 %s][任务 %s] 翻译失败（panic）: %v", shortID(sessionID), taskID, r)
		}
	}()

	logger := translator.NewTaskLogger(h.LogWriter, taskID)
	logger.SetDebugMode(h.Debug)
	processor := translator.NewBatchProcessor(h.Client, h.Batch, logger)

	result, err := processor.Process(h.ctx, texts, func(p models.ProgressState) {
		h.Tasks.UpdateTask(sessionID, taskID, func(t *models.TranslateTask) {
			t.Progress = p.Progress
			t.Pairs = p.Pairs
		})
	})

	h.Tasks.UpdateTask(sessionID, taskID, func(t *models.TranslateTask) {
		t.Pairs = result.Pairs
		t.Progress = 100
		t.CompletedAt = time.Now()
		if err != nil {
			t.Status = models.TaskStatusAborted
			t.Error = translator.UserMessage(err)
		} else {
			t.Status = models.TaskStatusCompleted
		}
	})

	if err != nil {
		log.Printf("[会话 %s][任务 %s] 翻译中止，保留 %d/%d 条: %v", shortID(sessionID), taskID, len(result.Pairs), len(texts), err)
		return
	}
	log.Printf("[会话 %s][任务 %s] 翻译完成，%d 条，占位 %d 条", shortID(sessionID), taskID, len(result.Pairs), result.Failed)
}

// GetStatusHandler 获取任务状态
func (h *Handler) GetStatusHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	task, exists := h.Tasks.GetTask(sessionID, c.Param("taskId"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或无权访问"})
		return
	}

	c.JSON(http.StatusOK, task)
}

// EventsHandler 以 SSE 推送任务进度，任务结束后关闭连接
func (h *Handler) EventsHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	bus, exists := h.Tasks.Events(sessionID, c.Param("taskId"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或无权访问"})
		return
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var lastSeq int64
	c.Stream(func(w io.Writer) bool {
		changed := bus.Changed()
		events := bus.Since(lastSeq)
		if len(events) > 0 {
			for _, event := range events {
				c.SSEvent("progress", event)
				lastSeq = event.Seq
				if event.Status.IsTerminal() {
					return false
				}
			}
			return true
		}

		select {
		case <-changed:
			return true
		case <-c.Request.Context().Done():
			return false
		case <-h.ctx.Done():
			return false
		}
	})
}

// GetTasksHandler 获取当前会话的所有任务
func (h *Handler) GetTasksHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	taskList := h.Tasks.GetUserTasks(sessionID)

	c.JSON(http.StatusOK, gin.H{
		"tasks": taskList,
		"total": len(taskList),
	})
}

// DownloadHandler 下载任务结果，配额中止的任务也可下载已完成部分
func (h *Handler) DownloadHandler(c *gin.Context) {
	sessionID := middleware.GetSessionID(c)
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的会话"})
		return
	}

	task, exists := h.Tasks.GetTask(sessionID, c.Param("taskId"))
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在或无权访问"})
		return
	}

	if task.Status != models.TaskStatusCompleted && task.Status != models.TaskStatusAborted {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务未完成"})
		return
	}

	writeWorkbook(c, spreadsheet.ExportFileName(task.SourceFile), task.Pairs)
}

// ExportHandler 将请求中的原文/译文对导出为 xlsx
func (h *Handler) ExportHandler(c *gin.Context) {
	var req models.ExportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "请求格式错误: " + err.Error()})
		return
	}

	writeWorkbook(c, spreadsheet.ExportFileName(req.FileName), req.Pairs)
}

func writeWorkbook(c *gin.Context, filename string, pairs []models.TranslatedPair) {
	var buf bytes.Buffer
	if err := spreadsheet.WritePairs(&buf, pairs, spreadsheet.DefaultHeaders); err != nil {
		log.Printf("导出 %s 失败: %v", filename, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "导出失败: " + err.Error()})
		return
	}

	c.Header("Content-Disposition", contentDisposition(filename))
	c.Data(http.StatusOK, spreadsheet.ContentType, buf.Bytes())
}

// contentDisposition 与 gin 的 FileAttachment 一致，非 ASCII 文件名使用 RFC 5987 编码
func contentDisposition(filename string) string {
	for _, r := range filename {
		if r > 127 {
			return `attachment; filename*=UTF-8''` + url.QueryEscape(filename)
		}
	}
	return `attachment; filename="` + filename + `"`
}
