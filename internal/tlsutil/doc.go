// Package tlsutil 为对外的模型调用提供安全加固的 HTTP 客户端（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
