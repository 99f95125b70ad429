package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	// DefaultGeminiURL Gemini generateContent 接口地址，key 以查询参数传入
	DefaultGeminiURL = "https://generativelanguage.googleapis.com/v1beta/models/gemini-1.5-flash:generateContent"

	// DefaultPrompt 固定的翻译提示词，原文追加在换行之后
	DefaultPrompt = "Translate the following text into English. Only return the translated text without any explanations."

	defaultTimeout = 60 * time.Second
)

// 翻译错误分类，调用方通过 errors.Is 判断
var (
	ErrQuotaExceeded     = errors.New("API 配额已用尽")
	ErrInvalidCredential = errors.New("API Key 无效")
	ErrMalformedResponse = errors.New("API 响应格式错误")
	ErrOther             = errors.New("翻译请求失败")
)

// Translator 单条文本翻译接口
type Translator interface {
	Translate(ctx context.Context, text string) (string, error)
}

// Provider AI 提供商接口
type Provider interface {
	Translator
	GetName() string
}

// ProviderConfig 提供商配置，凭据在构造时显式传入
type ProviderConfig struct {
	APIKey  string        `json:"apiKey"`
	APIURL  string        `json:"apiUrl"`
	Prompt  string        `json:"prompt"`
	Timeout time.Duration `json:"timeout"`
}

// GeminiProvider Google Gemini 提供商
type GeminiProvider struct {
	Config     ProviderConfig
	HTTPClient *http.Client
}

// NewGeminiProvider 创建 Gemini 提供商实例
func NewGeminiProvider(config ProviderConfig) *GeminiProvider {
	if config.APIURL == "" {
		config.APIURL = DefaultGeminiURL
	}
	if config.Prompt == "" {
		config.Prompt = DefaultPrompt
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	return &GeminiProvider{
		Config: config,
		HTTPClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

func (p *GeminiProvider) GetName() string {
	return "gemini"
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	Error *geminiError `json:"error,omitempty"`
}

// Translate 翻译一条文本，只请求一次，不重试
func (p *GeminiProvider) Translate(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: 待翻译文本为空", ErrOther)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: p.Config.Prompt + "\n" + text}}},
		},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOther, err)
	}

	apiURL, err := p.requestURL()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrOther, err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := p.doRequest(req)
	if err != nil {
		return "", err
	}

	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("%w: 解析响应失败: %v", ErrMalformedResponse, err)
	}

	if resp.Error != nil {
		return "", classifyFailure(resp.Error.Code, resp.Error.Message)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: 缺少 candidates[0].content.parts[0].text", ErrMalformedResponse)
	}

	result := strings.TrimSpace(resp.Candidates[0].Content.Parts[0].Text)
	if result == "" {
		return "", fmt.Errorf("%w: 译文为空", ErrMalformedResponse)
	}
	return result, nil
}

// requestURL 拼接 ?key= 查询参数
func (p *GeminiProvider) requestURL() (string, error) {
	u, err := url.Parse(p.Config.APIURL)
	if err != nil {
		return "", fmt.Errorf("%w: API URL 无效: %v", ErrOther, err)
	}
	q := u.Query()
	q.Set("key", p.Config.APIKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// doRequest 执行 HTTP 请求，非 200 响应按状态码和错误信息分类
func (p *GeminiProvider) doRequest(req *http.Request) ([]byte, error) {
	resp, err := p.HTTPClient.Do(req)
	if err != nil {
		err = redactURL(err)
		if mentionsQuota(err.Error()) {
			return nil, fmt.Errorf("%w: %w", ErrQuotaExceeded, err)
		}
		return nil, fmt.Errorf("%w: API 请求失败: %w", ErrOther, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: 读取响应失败: %w", ErrOther, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyFailure(resp.StatusCode, errorMessage(body))
	}

	return body, nil
}

// redactURL 去掉传输错误中 URL 的查询参数，key 不进入错误信息和日志
func redactURL(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	u, perr := url.Parse(ue.URL)
	if perr != nil {
		return ue.Err
	}
	u.RawQuery = ""
	return &url.Error{Op: ue.Op, URL: u.String(), Err: ue.Err}
}

// classifyFailure 429 或包含 quota 的信息视为配额错误，401 视为凭据错误
func classifyFailure(status int, message string) error {
	switch {
	case status == http.StatusTooManyRequests || mentionsQuota(message):
		return fmt.Errorf("%w (状态码 %d): %s", ErrQuotaExceeded, status, message)
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w (状态码 %d): %s", ErrInvalidCredential, status, message)
	default:
		return fmt.Errorf("%w (状态码 %d): %s", ErrOther, status, message)
	}
}

// errorMessage 优先取 error.message，否则返回原始响应体
func errorMessage(body []byte) string {
	var resp geminiResponse
	if err := json.Unmarshal(body, &resp); err == nil && resp.Error != nil && resp.Error.Message != "" {
		return resp.Error.Message
	}
	return strings.TrimSpace(string(body))
}

func mentionsQuota(message string) bool {
	return strings.Contains(strings.ToLower(message), "quota")
}
