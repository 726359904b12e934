// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
Package types 提供 localroute 的全局共享类型定义。

# 概述

types 是最底层的公共包，不依赖任何内部包，为 llm、api、config 等上层模块
提供统一的错误契约与 context 传播工具。

# 核心类型

  - Error / ErrorCode: 结构化错误体系，含 HTTP 状态码、Retryable、Details
  - CONFIGURATION / EXECUTABLE_NOT_FOUND / INVOCATION_TIMEOUT / CLI_PROCESS /
    FORMAT_CONVERSION / UPSTREAM: 路由核心的错误分类

# 主要能力

  - 错误工具链：AsError / IsCode / GetErrorCode / IsRetryable / HTTPStatusOf
  - Context 传播：WithTraceID / WithRequestID / WithRoute
*/
package types
