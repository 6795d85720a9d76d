// Package logging 提供结构化日志门面。
//
// 各组件不直接依赖具体日志实现，统一通过 ComponentLogger 派生
// 带 component 字段的 Logger；测试注入 NoopLogger。
package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"
)

// Level 日志级别
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger 日志接口
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...Field)
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)

	// WithFields 返回携带附加字段的新 Logger，原 Logger 不变
	WithFields(fields ...Field) Logger
}

// ILogger Logger 的别名，组件构造函数统一使用该名称
type ILogger = Logger

// Field 结构化字段
type Field struct {
	Key   string
	Value any
}

// 字段构造函数
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

func Error(err error) Field {
	return Field{Key: "error", Value: err}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value}
}

// StdLogger 基于标准库 log 的实现，key=value 文本输出。
type StdLogger struct {
	prefix   string
	minLevel Level
	fields   []Field
}

// NewStdLogger 创建标准库实现（默认输出所有级别）
func NewStdLogger(prefix string) *StdLogger {
	return &StdLogger{prefix: prefix, minLevel: DebugLevel}
}

// WithMinLevel 返回仅输出指定级别及以上的副本
func (l *StdLogger) WithMinLevel(level Level) *StdLogger {
	clone := *l
	clone.minLevel = level
	return &clone
}

func (l *StdLogger) emit(level Level, msg string, fields []Field) {
	if level < l.minLevel {
		return
	}
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(level.String())
	b.WriteString("]")
	if l.prefix != "" {
		b.WriteString(" ")
		b.WriteString(l.prefix)
	}
	b.WriteString(" ")
	b.WriteString(msg)
	for _, f := range l.fields {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	log.Println(b.String())
}

func writeField(b *strings.Builder, f Field) {
	b.WriteString(" ")
	b.WriteString(f.Key)
	b.WriteString("=")
	switch v := f.Value.(type) {
	case string:
		b.WriteString(v)
	case error:
		b.WriteString(v.Error())
	default:
		fmt.Fprint(b, v)
	}
}

func (l *StdLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.emit(DebugLevel, msg, fields)
}

func (l *StdLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.emit(InfoLevel, msg, fields)
}

func (l *StdLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.emit(WarnLevel, msg, fields)
}

func (l *StdLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.emit(ErrorLevel, msg, fields)
}

func (l *StdLogger) WithFields(fields ...Field) Logger {
	clone := *l
	clone.fields = make([]Field, 0, len(l.fields)+len(fields))
	clone.fields = append(clone.fields, l.fields...)
	clone.fields = append(clone.fields, fields...)
	return &clone
}

// NoopLogger 丢弃所有日志，测试默认注入。
type NoopLogger struct{}

// NewNoopLogger 创建空实现
func NewNoopLogger() *NoopLogger {
	return &NoopLogger{}
}

func (l *NoopLogger) Debug(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) Info(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Warn(ctx context.Context, msg string, fields ...Field)  {}
func (l *NoopLogger) Error(ctx context.Context, msg string, fields ...Field) {}
func (l *NoopLogger) WithFields(fields ...Field) Logger                      { return l }

// 全局 Logger，进程启动时可替换，读写并发安全
var globalLogger atomic.Pointer[Logger]

func init() {
	var l Logger = NewStdLogger("")
	globalLogger.Store(&l)
}

// SetLogger 替换全局 Logger
func SetLogger(logger Logger) {
	if logger == nil {
		return
	}
	globalLogger.Store(&logger)
}

// GetLogger 返回全局 Logger
func GetLogger() Logger {
	return *globalLogger.Load()
}

// ComponentLogger 基于全局 Logger 派生带 component 字段的 Logger
//
// 各组件构造函数统一通过该入口派生自己的日志器：
//
//	logger := logging.ComponentLogger("saga.orchestrator")
func ComponentLogger(name string) Logger {
	return GetLogger().WithFields(String("component", name))
}
