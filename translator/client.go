package translator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// DefaultBreakerTimeout 配额熔断后暂停调用的时间
const DefaultBreakerTimeout = time.Minute

// TranslatorClient 翻译客户端
//
// 所有任务共用一个客户端。任何一次配额错误都会打开熔断器，
// 熔断期间的调用直接返回 ErrQuotaExceeded，不再请求远端接口。
// 熔断超时后只放行一个试用请求，与之并发的调用返回 ErrOther。
// 其他错误不计入熔断。客户端本身不做重试。
type TranslatorClient struct {
	Provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// NewTranslatorClient 创建 Gemini 翻译客户端
func NewTranslatorClient(config ProviderConfig, breakerTimeout time.Duration) *TranslatorClient {
	return NewTranslatorClientWithProvider(NewGeminiProvider(config), breakerTimeout)
}

// NewTranslatorClientWithProvider 使用指定提供商创建客户端
func NewTranslatorClientWithProvider(provider Provider, breakerTimeout time.Duration) *TranslatorClient {
	if breakerTimeout <= 0 {
		breakerTimeout = DefaultBreakerTimeout
	}

	settings := gobreaker.Settings{
		Name:        provider.GetName() + "-quota",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 1
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrQuotaExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("[WARN] 熔断器 %s 状态变化: %s -> %s", name, from, to)
		},
	}

	return &TranslatorClient{
		Provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(settings),
	}
}

// Translate 翻译文本（单次请求）
func (c *TranslatorClient) Translate(ctx context.Context, text string) (string, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.Provider.Translate(ctx, text)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			return "", fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
		}
		if errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %v", ErrOther, err)
		}
		return "", err
	}

	return result.(string), nil
}

// BreakerState 熔断器当前状态
func (c *TranslatorClient) BreakerState() gobreaker.State {
	return c.breaker.State()
}
