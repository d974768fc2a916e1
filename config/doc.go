// Package config 提供 Wingman 服务的配置管理功能。
//
// 配置按“默认值 → YAML 文件 → WINGMAN_ 前缀环境变量”的顺序叠加，
// 并提供对 crew 定义目录的轮询监听，用于触发定义热重载。
package config
