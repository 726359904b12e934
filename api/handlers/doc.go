// Copyright (c) AgentFlow Authors.
// Licensed under the MIT License.

/*
Package handlers 提供 localroute HTTP 代理的请求处理器实现。

# 概述

handlers 包把入站请求送过请求闸门（方法 → 路径白名单 → 请求体大小），
再按调用方凭据分流：哨兵密钥交给本地 CLI，其余请求经 httputil.ReverseProxy
原样转发到厂商 API。管理端点由 chi 路由直接挂载，不经过白名单。

# 核心类型

  - ProxyHandler  : 代理入口，负责闸门、分流、统计与本地端点
  - HealthHandler : /health、/ready、/version、/stats
  - HealthCheck   : 可插拔检查接口（ExecutableCheck、FuncCheck）
  - MessagesBody  : Messages 请求体，content/system 可为字符串或内容块
  - CompleteBody  : 旧版 Text Completions 请求体
  - ResponseWriter: 包装 http.ResponseWriter 以捕获状态码

# 错误格式

WriteError 按 Dialect 输出厂商错误体：

  - Anthropic: {"type":"error","error":{"type":...,"message":...}}
  - OpenAI:    {"error":{"message":...,"type":...,"code":...}}

ErrorType 把 types.ErrorCode 映射为厂商错误类型，例如
EXECUTABLE_NOT_FOUND → not_found_error，INVOCATION_TIMEOUT → timeout_error。
非 *types.Error 的错误只返回通用信息，不暴露内部细节。
*/
package handlers
