// Package tokenizer 提供统一的 Token 计数接口，
// 本地路由使用词数估算器（4/3 token/词），可选 tiktoken 近似计数。
// 两者给出的都是估算值，不是计费口径。
package tokenizer
