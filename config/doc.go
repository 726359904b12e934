// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

// Package config 提供 localroute 的配置加载。
//
// 默认值、YAML 或 TOML 文件、LOCALROUTE_* 环境变量依次覆盖，
// 加载后通过 Validate 一次性报告全部错误。
package config
