// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供远端（REMOTE）路由所用客户端的公共基础层。
子包 anthropic 与 openai 各自实现 llm.Client，路由门面把非哨兵凭据的
请求原样交给它们，结果与错误不做二次解释。

# 核心类型

  - AnthropicConfig / OpenAIConfig: 远端客户端配置（APIKey、BaseURL、Timeout）

# 核心函数

  - MapHTTPError: 上游 HTTP 错误映射为 UPSTREAM（保留状态码、错误类型、Retryable）
  - TransportError: 网络层失败
  - ReadErrorMessage: 兼容 Anthropic / OpenAI 两种错误体
*/
package providers
