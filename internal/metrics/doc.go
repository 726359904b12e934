// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
包 metrics 提供基于 Prometheus 的代理指标采集，覆盖 HTTP、路由决策、
本地 CLI 调用与统计存储四个维度。

# 核心类型

  - Collector：持有 Counter、Histogram、Gauge 向量指标，
    NewCollector 注册到默认 Registry，NewCollectorWith 注册到指定 Registry。

# 主要能力

  - HTTP 指标：请求总数、耗时、请求/响应体大小，状态码归类为 2xx/3xx/4xx/5xx。
  - 路由指标：按 family/route 统计决策，被拦截请求按 reason 统计，
    失败请求按错误码统计，本地路径估算 token 按 input/output 统计。
  - CLI 指标：按 executable/outcome 统计调用次数与耗时，以及在途调用数。
  - 统计存储指标：按 driver/operation 统计操作耗时。
*/
package metrics
