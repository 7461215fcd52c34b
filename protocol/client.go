/*
 * @Author: kamalyes 501893067@qq.com
 * @Date: 2026-02-10 00:00:00
 * @LastEditors: kamalyes 501893067@qq.com
 * @LastEditTime: 2026-02-10 12:00:00
 * @FilePath: \go-testagent\protocol\client.go
 * @Description: 后端 WebSocket 协议客户端 - 重连、分发、出站序列化
 *
 * Copyright (c) 2026 by kamalyes, All Rights Reserved.
 */
package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kamalyes/go-logger"
	"github.com/kamalyes/go-testagent/config"
	"github.com/kamalyes/go-testagent/types"
	"github.com/kamalyes/go-toolbox/pkg/syncx"
)

var (
	// ErrReconnectExhausted 重连次数耗尽，客户端进入 offline 终态
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted, client is offline")
	// ErrNotConnected 连接未建立
	ErrNotConnected = errors.New("websocket not connected")
)

// maxBackoffFactor 重连延迟的增长上界：delay = base * min(attempt, 5)
const maxBackoffFactor = 5

// Handler 入站消息处理器
type Handler func(data json.RawMessage)

// Client 后端 WebSocket 客户端。
// 一个 Client 实例维护一条逻辑连接；断线后按有界增长的延迟重连，
// 超过最大次数进入 offline 终态，再次 Connect 会重置计数器。
type Client struct {
	cfg    *config.Config
	dialer *websocket.Dialer

	mu   sync.Mutex // 保护 conn 与出站写
	conn *websocket.Conn

	handlers *syncx.ShardedMap[string, Handler]

	connected *syncx.Bool
	offline   *syncx.Bool
	attempts  *syncx.Uint64

	onConnect func()
	onOffline func()

	cancel context.CancelFunc
	logger logger.ILogger
}

// NewClient 创建协议客户端
func NewClient(cfg *config.Config, log logger.ILogger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	u, err := url.Parse(cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("invalid backend URL: %w", err)
	}

	// 自动转换 http/https 为 ws/wss
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("invalid backend scheme: %s (expected ws or wss)", u.Scheme)
	}

	client := &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		handlers:  syncx.NewShardedMap[string, Handler](16),
		connected: syncx.NewBool(false),
		offline:   syncx.NewBool(false),
		attempts:  syncx.NewUint64(0),
		logger:    log,
	}
	client.cfg.BackendURL = u.String()
	return client, nil
}

// buildURL 构造连接地址。配置了 API Key 时作为 token 查询参数附带，
// 未配置时完全省略该参数而不是发送空值。
func (c *Client) buildURL() string {
	if c.cfg.APIKey == "" {
		return c.cfg.BackendURL
	}

	u, err := url.Parse(c.cfg.BackendURL)
	if err != nil {
		return c.cfg.BackendURL
	}
	q := u.Query()
	q.Set("token", c.cfg.APIKey)
	u.RawQuery = q.Encode()
	return u.String()
}

// buildHeaders 构造握手请求头，凭据同时以头部形式附带
func (c *Client) buildHeaders() http.Header {
	headers := make(http.Header)
	if c.cfg.APIKey != "" {
		headers.Set("Authorization", "Bearer "+c.cfg.APIKey)
		headers.Set("X-API-Key", c.cfg.APIKey)
	}
	return headers
}

// OnMessage 按消息类型注册处理器
func (c *Client) OnMessage(msgType string, handler Handler) {
	c.handlers.Store(msgType, handler)
}

// OnConnect 注册连接建立回调（注册消息在此发送）
func (c *Client) OnConnect(cb func()) {
	c.onConnect = cb
}

// OnOffline 注册 offline 终态回调，编排层据此把槽位标记为不可达
func (c *Client) OnOffline(cb func()) {
	c.onOffline = cb
}

// Connected 当前是否已连接
func (c *Client) Connected() bool {
	return c.connected.Load()
}

// Offline 是否处于 offline 终态
func (c *Client) Offline() bool {
	return c.offline.Load()
}

// Attempts 当前连续失败的连接尝试次数
func (c *Client) Attempts() uint64 {
	return c.attempts.Load()
}

// Connect 启动连接维护循环。
// offline 终态后的再次调用会重置尝试计数并重新开始。
func (c *Client) Connect(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.attempts.Store(0)
	c.offline.Store(false)

	syncx.Go().
		OnPanic(func(r interface{}) {
			c.logger.ErrorKV("Connection loop panicked", "panic", r)
		}).
		Exec(func() {
			c.runLoop(ctx)
		})
}

// runLoop 连接维护循环：拨号、收消息、断线重连
func (c *Client) runLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := c.dial(ctx)
		if err != nil {
			attempt := c.attempts.Add(1)
			if attempt > uint64(c.cfg.Reconnect.MaxAttempts) {
				c.goOffline()
				return
			}

			delay := c.nextDelay(attempt)
			c.logger.WarnKV("🔌 Connect failed, retrying",
				"attempt", attempt,
				"max_attempts", c.cfg.Reconnect.MaxAttempts,
				"delay", delay,
				"error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}

		// 握手成功：计数清零
		c.attempts.Store(0)
		c.setConn(conn)
		c.connected.Store(true)
		c.logger.InfoKV("🔗 Connected to backend", "url", c.cfg.BackendURL)

		if c.onConnect != nil {
			c.onConnect()
		}

		c.readLoop(ctx, conn)

		c.connected.Store(false)
		c.setConn(nil)
		c.logger.WarnKV("Connection lost", "url", c.cfg.BackendURL)
	}
}

// dial 拨号一次
func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, httpResp, err := c.dialer.DialContext(ctx, c.buildURL(), c.buildHeaders())
	if httpResp != nil {
		httpResp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// nextDelay 第 attempt 次重试前的等待时间。
// 有界增长：base * min(attempt, maxBackoffFactor)。
func (c *Client) nextDelay(attempt uint64) time.Duration {
	factor := attempt
	if factor > maxBackoffFactor {
		factor = maxBackoffFactor
	}
	return c.cfg.Reconnect.BaseDelay * time.Duration(factor)
}

// goOffline 进入 offline 终态
func (c *Client) goOffline() {
	c.offline.Store(true)
	c.connected.Store(false)
	c.logger.ErrorKV("❌ Reconnect exhausted, client offline",
		"max_attempts", c.cfg.Reconnect.MaxAttempts)
	if c.onOffline != nil {
		c.onOffline()
	}
}

// readLoop 接收循环，连接断开时返回
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.InfoKV("Backend closed connection", "error", err)
			}
			return
		}

		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.WarnKV("Malformed inbound message", "error", err)
			continue
		}

		c.Dispatch(&env)

		if ctx.Err() != nil {
			return
		}
	}
}

// Dispatch 将入站消息路由到注册的处理器。
// 处理器 panic 在分发边界被隔离，接收循环继续运行。
func (c *Client) Dispatch(env *types.Envelope) {
	handler, ok := c.handlers.Load(env.Type)
	if !ok {
		c.logger.WarnKV("No handler for message type", "type", env.Type)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.ErrorKV("Handler panicked",
				"type", env.Type,
				"panic", r)
		}
	}()
	handler(env.Data)
}

// setConn 替换当前连接
func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil && conn == nil {
		c.conn.Close()
	}
	c.conn = conn
}

// Send 序列化并发送一个消息信封，写操作串行化
func (c *Client) Send(msgType string, payload any) error {
	env, err := types.NewEnvelope(msgType, payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("websocket write failed: %w", err)
	}
	return nil
}

// SendStateUpdate 发送槽位状态更新
func (c *Client) SendStateUpdate(update *types.StateUpdatePayload) error {
	return c.Send(types.MsgStateUpdate, update)
}

// SendTestCompleted 发送测试完成事件
func (c *Client) SendTestCompleted(completed *types.TestCompletedPayload) error {
	return c.Send(types.MsgTestCompleted, completed)
}

// Close 关闭客户端
func (c *Client) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected.Store(false)
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
