// internal/pkg/httpclient/client.go

package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Discoverer 根据服务名返回一个健康实例的地址，由 nacos.Client 实现
type Discoverer interface {
	DiscoverServiceInstance(serviceName string) (string, int, error)
}

// StatusError 表示下游返回了非 2xx 的状态码，Body 保留原始响应体供调用方解析
type StatusError struct {
	URL  string
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service %s returned status %d", e.URL, e.Code)
}

// Client 是一个可追踪的、可注入的HTTP客户端
type Client struct {
	Tracer     trace.Tracer
	HTTPClient *http.Client
	// Timeout 是单次调用的超时时间，0 表示只受调用方 context 控制
	Timeout    time.Duration
	discoverer Discoverer
}

type Option func(*Client)

// WithDiscoverer 允许用裸服务名作为调用目标，地址通过服务发现解析
func WithDiscoverer(d Discoverer) Option {
	return func(c *Client) {
		c.discoverer = d
	}
}

// WithTimeout 设置单次调用的超时时间
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.Timeout = d
	}
}

// NewClient 创建一个新的客户端实例
func NewClient(tracer trace.Tracer, opts ...Option) *Client {
	// http.Client 不设置 Timeout 字段，让其完全受控于每次请求的 context
	c := &Client{
		Tracer: tracer,
		HTTPClient: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetJSON 发起 GET 请求并把 2xx 响应体解码到 out
func (c *Client) GetJSON(ctx context.Context, target, path string, query url.Values, out interface{}) error {
	return c.do(ctx, http.MethodGet, target, path, query, nil, out)
}

// PostJSON 把 in 编码为 JSON 发起 POST 请求，并把 2xx 响应体解码到 out
func (c *Client) PostJSON(ctx context.Context, target, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, target, path, nil, in, out)
}

// resolve 把调用目标转成基础 URL。
// 目标本身是 http(s) 地址时直接使用，否则视为服务名交给服务发现。
func (c *Client) resolve(target string) (string, error) {
	if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		return strings.TrimRight(target, "/"), nil
	}
	if c.discoverer == nil {
		return "", fmt.Errorf("cannot resolve service %q: no service discovery configured", target)
	}
	ip, port, err := c.discoverer.DiscoverServiceInstance(target)
	if err != nil {
		return "", err
	}
	return "http://" + ip + ":" + strconv.Itoa(port), nil
}

func (c *Client) do(ctx context.Context, method, target, path string, query url.Values, in, out interface{}) error {
	base, err := c.resolve(target)
	if err != nil {
		return err
	}
	parsedURL, err := url.Parse(base + path)
	if err != nil {
		return err
	}
	if len(query) > 0 {
		parsedURL.RawQuery = query.Encode()
	}

	// 从 URL 中解析出服务名用于 Span
	spanName := fmt.Sprintf("call-%s", strings.Split(parsedURL.Host, ":")[0])
	if !strings.HasPrefix(target, "http") {
		spanName = "call-" + target
	}
	ctx, span := c.Tracer.Start(ctx, spanName, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			span.RecordError(err)
			return err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, parsedURL.String(), body)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	span.SetAttributes(
		attribute.String("http.url", parsedURL.String()),
		attribute.String("http.method", method),
	)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err := &StatusError{URL: parsedURL.String(), Code: resp.StatusCode, Body: raw}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		err = fmt.Errorf("malformed response from %s: %w", parsedURL.String(), err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
