// Package telemetry 封装 OpenTelemetry SDK 初始化逻辑，
// 为 localroute 的路由与 CLI 调用 span、OTel 指标提供全局 TracerProvider 与 MeterProvider。
// 当遥测功能禁用时，使用 noop 实现，不连接任何外部服务。
package telemetry
