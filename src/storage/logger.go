package storage

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel 定义日志级别类型
type LogLevel int

// 日志级别常量定义
const (
	DEBUG   LogLevel = iota // 调试信息
	INFO                    // 普通信息
	WARNING                 // 警告信息
	ERROR                   // 错误信息
	FATAL                   // 致命错误
)

// Logger 日志记录器结构体，日志由 zap 写入文件，同时推送给订阅者
type Logger struct {
	zl          *zap.Logger
	level       zap.AtomicLevel
	filename    string
	file        *os.File      // 日志文件句柄
	mu          sync.Mutex    // 互斥锁，保证并发安全
	subscribers []chan string // 订阅者通道列表
}

// NewLogger 创建新的日志记录器
// 参数:
//
//	filename: 日志文件路径
//	level: 最低日志级别，如 "debug"、"info"
//
// 返回值:
//
//	*Logger: 日志记录器实例
//	error: 创建过程中的错误
func NewLogger(filename, level string) (*Logger, error) {
	lvl := zap.NewAtomicLevel()
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}

	l := &Logger{level: lvl, filename: filename}
	if err := l.open(filename); err != nil {
		return nil, err
	}
	return l, nil
}

// Nop 返回不输出任何内容的记录器，订阅仍然可用
func Nop() *Logger {
	return &Logger{zl: zap.NewNop(), level: zap.NewAtomicLevelAt(zapcore.DebugLevel)}
}

func (l *Logger) open(filename string) error {
	// 打开或创建日志文件，权限设置为0644
	file, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(file), l.level),
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), l.level),
	)
	l.file = file
	l.filename = filename
	l.zl = zap.New(core)
	return nil
}

// Close 刷新并关闭日志文件
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zl.Sync()
	if l.file != nil {
		err := l.file.Close()
		l.file = nil
		return err
	}
	return nil
}

// Reopen 重新打开一个文件，用于外部日志轮转后的 SIGHUP
// 参数：
// filename：新文件的路径
// 返回值：
// error：重建文件时的错误
func (l *Logger) Reopen(filename string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 关闭旧文件
	if l.zl != nil {
		_ = l.zl.Sync()
	}
	if l.file != nil {
		_ = l.file.Close()
	}
	return l.open(filename)
}

// Log 记录日志方法
// 参数:
//
//	level: 日志级别
//	message: 日志消息内容
//	fields: 结构化字段
func (l *Logger) Log(level LogLevel, message string, fields ...zap.Field) {
	l.mu.Lock()         // 加锁保证线程安全
	defer l.mu.Unlock() // 方法结束时自动解锁

	zlvl := level.zapLevel()
	if ce := l.zl.Check(zlvl, message); ce != nil {
		ce.Write(fields...)
	}
	if !l.level.Enabled(zlvl) || len(l.subscribers) == 0 {
		return
	}

	// 格式化日志条目: [时间] 级别: 消息 key=value
	entry := fmt.Sprintf("[%s] %s: %s%s",
		time.Now().Format("2006-01-02 15:04:05"),
		level.String(),
		message,
		formatFields(fields))

	// 通知所有订阅者
	for _, ch := range l.subscribers {
		select {
		case ch <- entry: // 尝试发送日志条目
		default: // 如果通道已满则跳过
		}
	}
}

// CheckRotate 日志文件超过 maxSize（如 "10 * 1024 * 1024"）时轮转
func (l *Logger) CheckRotate(maxSize string) error {
	l.mu.Lock()
	file := l.file
	l.mu.Unlock()
	if file == nil || maxSize == "" {
		return nil
	}

	info, err := file.Stat()
	if err != nil {
		return err
	}
	if info.Size() > eval(maxSize) {
		return l.rotateLog()
	}
	return nil
}

func (l *Logger) rotateLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	_ = l.zl.Sync()
	if l.file != nil {
		l.file.Close()
		ext := ""
		base := l.filename
		if i := strings.LastIndex(base, "."); i > 0 {
			base, ext = base[:i], base[i:]
		}
		if err := os.Rename(l.filename, fmt.Sprintf("%s.%s%s", base, time.Now().Format("20060102150405"), ext)); err != nil {
			return err
		}
	}
	return l.open(l.filename)
}

// Subscribe 订阅日志消息
// 返回值:
//
//	<-chan string: 只读通道，用于接收日志消息
func (l *Logger) Subscribe() <-chan string {
	l.mu.Lock()
	defer l.mu.Unlock()

	// 创建带缓冲的通道(容量100)
	ch := make(chan string, 100)
	// 将新通道加入订阅者列表
	l.subscribers = append(l.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅，通道不会被关闭
func (l *Logger) Unsubscribe(sub <-chan string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, ch := range l.subscribers {
		if ch == sub {
			l.subscribers = append(l.subscribers[:i], l.subscribers[i+1:]...)
			return
		}
	}
}

// String 实现LogLevel的String方法
// 返回值:
//
//	string: 日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARNING:
		return "WARNING"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// FATAL 只记录不退出，由调用方决定是否终止
func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case DEBUG:
		return zapcore.DebugLevel
	case WARNING:
		return zapcore.WarnLevel
	case ERROR:
		return zapcore.ErrorLevel
	case FATAL:
		return zapcore.DPanicLevel
	default:
		return zapcore.InfoLevel
	}
}

func formatFields(fields []zap.Field) string {
	if len(fields) == 0 {
		return ""
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range fields {
		f.AddTo(enc)
	}
	keys := make([]string, 0, len(enc.Fields))
	for k := range enc.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, enc.Fields[k])
	}
	return b.String()
}

func eval(expr string) int64 {
	parts := strings.Split(expr, "*")
	var result int64 = 1
	for _, part := range parts {
		num, _ := strconv.Atoi(strings.TrimSpace(part))
		result *= int64(num)
	}
	return result
}

// 以下是快捷日志方法
func (l *Logger) Debug(msg string, fields ...zap.Field)   { l.Log(DEBUG, msg, fields...) }   // 记录调试信息
func (l *Logger) Info(msg string, fields ...zap.Field)    { l.Log(INFO, msg, fields...) }    // 记录普通信息
func (l *Logger) Warning(msg string, fields ...zap.Field) { l.Log(WARNING, msg, fields...) } // 记录警告信息
func (l *Logger) Error(msg string, fields ...zap.Field)   { l.Log(ERROR, msg, fields...) }   // 记录错误信息
func (l *Logger) Fatal(msg string, fields ...zap.Field)   { l.Log(FATAL, msg, fields...) }   // 记录致命错误
