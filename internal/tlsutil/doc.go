// Package tlsutil 集中提供 TLS 加固配置（TLS 1.2+，仅 AEAD 密码套件），
// 供外部协作者的 HTTP 客户端与 Redis 连接使用。
package tlsutil
