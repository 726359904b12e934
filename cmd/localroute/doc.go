// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package main 提供 localroute 代理程序入口。

# 概述

cmd/localroute 在本机监听一个 HTTP 端口，接收 Anthropic 与 OpenAI
格式的 API 请求。请求携带的 key 若为哨兵凭据（最后一个 "-" 段全部是 9），
请求由本地 claude / codex CLI 应答；否则原样转发到厂商 API。

# 核心类型

  - Server     : 组装 router、统计存储、指标与 HTTP 服务器，管理优雅关闭
  - Middleware : HTTP 中间件函数签名 func(http.Handler) http.Handler

# 主要能力

  - 子命令：serve、check、classify、version、health
  - 中间件链：Recovery、RequestID、OTelTracing、SecurityHeaders、
    RequestLogger、MetricsMiddleware、CORS、RateLimiter（基于 IP）
  - 白名单：--allowed-paths 整体替换，--allowed-path 可重复追加
  - Metrics 服务器：独立端口暴露 /metrics（Prometheus）
  - 优雅关闭：信号 → 关闭 HTTP → 打印统计 → 关闭 router 与统计存储 → 遥测
  - 构建注入：Version、BuildTime、GitCommit 通过 ldflags 设置
*/
package main
