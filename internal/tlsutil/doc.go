// Package tlsutil 提供访问厂商 API 的 HTTP 传输层：TLS 1.2+、仅 AEAD 密码套件，
// 且不读取 HTTP(S)_PROXY 环境变量，避免透传流量绕回本代理。
package tlsutil
