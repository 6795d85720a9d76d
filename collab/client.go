// Package collab 提供对协作服务（商品目录、支付、积分余额）的同步调用客户端。
//
// 所有客户端共享同一套出站调用约定：
//   - hashicorp/go-retryablehttp 负责瞬时网络错误与 5xx 的有限重试
//   - sony/gobreaker 熔断器包住整次调用，熔断打开时快速失败
//   - 错误统一映射为带错误码的 AppError：熔断打开/网络不可达 →
//     SERVICE_UNAVAILABLE，404 → NOT_FOUND，其余非 2xx → SYSTEM_ERROR
package collab

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sony/gobreaker"

	"ordersaga/errors"
	"ordersaga/logging"
)

// BreakerConfig 熔断器配置
type BreakerConfig struct {
	// MaxRequests 半开状态下允许的探测请求数
	MaxRequests uint32
	// Interval 关闭状态下计数窗口的重置周期
	Interval time.Duration
	// Timeout 打开状态持续时间，超时后进入半开
	Timeout time.Duration
	// FailureThreshold 触发熔断的失败率阈值 (0,1]
	FailureThreshold float64
	// MinRequests 窗口内达到该请求数后才评估失败率
	MinRequests uint32
}

// DefaultBreakerConfig 返回默认熔断配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// ClientConfig 协作客户端通用配置
type ClientConfig struct {
	// Name 客户端名称，用于熔断器与日志标识
	Name string
	// BaseURL 协作服务基地址，如 http://catalog:8080
	BaseURL string
	// HTTPTimeout 单次请求超时，默认 5s
	HTTPTimeout time.Duration
	// RetryMax 最大重试次数，默认 2
	RetryMax int
	// RetryWaitMin 重试等待下限，默认 100ms
	RetryWaitMin time.Duration
	// RetryWaitMax 重试等待上限，默认 2s
	RetryWaitMax time.Duration
	// Breaker 熔断配置，零值使用 DefaultBreakerConfig
	Breaker BreakerConfig
	// Logger 日志器，nil 时派生组件日志器
	Logger logging.Logger
}

// httpClient 各协作客户端共享的出站调用封装
type httpClient struct {
	name    string
	baseURL string
	client  *retryablehttp.Client
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

func newHTTPClient(cfg ClientConfig) *httpClient {
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 5 * time.Second
	}
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 2
	}
	if cfg.RetryWaitMin <= 0 {
		cfg.RetryWaitMin = 100 * time.Millisecond
	}
	if cfg.RetryWaitMax <= 0 {
		cfg.RetryWaitMax = 2 * time.Second
	}
	if cfg.Breaker == (BreakerConfig{}) {
		cfg.Breaker = DefaultBreakerConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.ComponentLogger("collab." + cfg.Name)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.HTTPTimeout
	rc.Logger = nil
	// 重试耗尽后把最后一次响应透传回来，便于按状态码映射错误码
	rc.ErrorHandler = func(resp *http.Response, err error, _ int) (*http.Response, error) {
		return resp, err
	}

	breakerCfg := cfg.Breaker
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: breakerCfg.MaxRequests,
		Interval:    breakerCfg.Interval,
		Timeout:     breakerCfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < breakerCfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= breakerCfg.FailureThreshold
		},
	})

	return &httpClient{
		name:    cfg.Name,
		baseURL: cfg.BaseURL,
		client:  rc,
		breaker: cb,
		logger:  cfg.Logger,
	}
}

// getJSON 发起 GET 请求并将 2xx 响应体解码到 out
func (c *httpClient) getJSON(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// postJSON 发起 POST 请求，body 编码为 JSON，2xx 响应体解码到 out
func (c *httpClient) postJSON(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *httpClient) do(ctx context.Context, method, path string, body, out any) error {
	_, err := c.breaker.Execute(func() (any, error) {
		var reader io.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeInternal, "encode request body")
			}
			reader = bytes.NewReader(data)
		}

		req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrCodeInternal, "build request")
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if resp != nil {
			defer resp.Body.Close()
		}
		if err != nil && resp == nil {
			return nil, errors.WrapError(err, errors.ErrCodeServiceUnavailable,
				fmt.Sprintf("%s unreachable", c.name))
		}
		if resp.StatusCode == http.StatusNotFound {
			return nil, errors.NewError(errors.ErrCodeNotFound,
				fmt.Sprintf("%s: %s %s returned 404", c.name, method, path))
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, errors.NewError(errors.ErrCodeInternal,
				fmt.Sprintf("%s: %s %s returned status %d", c.name, method, path, resp.StatusCode))
		}
		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return nil, errors.WrapError(err, errors.ErrCodeInternal, "decode response body")
			}
		}
		return nil, nil
	})
	if err != nil {
		return c.mapError(ctx, method, path, err)
	}
	return nil
}

// mapError 把熔断器错误归一为 SERVICE_UNAVAILABLE，其余错误原样返回
func (c *httpClient) mapError(ctx context.Context, method, path string, err error) error {
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		c.logger.Warn(ctx, "熔断器拒绝请求",
			logging.String("client", c.name),
			logging.String("method", method),
			logging.String("path", path))
		return errors.WrapError(err, errors.ErrCodeServiceUnavailable,
			fmt.Sprintf("%s circuit open", c.name))
	}
	c.logger.Warn(ctx, "协作服务调用失败",
		logging.String("client", c.name),
		logging.String("method", method),
		logging.String("path", path),
		logging.Error(err))
	return err
}
