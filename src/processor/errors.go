package processor

import (
	"errors"
	"fmt"
)

// 可用 errors.Is 匹配的错误类别
var (
	ErrDataSource           = errors.New("data unavailable")
	ErrJoinKeyMismatch      = errors.New("join key mismatch")
	ErrInsufficientSample   = errors.New("not enough data in range")
	ErrSampleSizeOutOfRange = errors.New("sample size out of range")
)

// DataSourceError 数据源缺失、无法读取或缺少必需列，加载中止
type DataSourceError struct {
	Source string // 数据源名称，如 complete_orders
	Column string // 缺失或格式错误的列，可为空
	Err    error
}

func (e *DataSourceError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("data source %q column %q: %v", e.Source, e.Column, e.Err)
	}
	return fmt.Sprintf("data source %q: %v", e.Source, e.Err)
}

func (e *DataSourceError) Unwrap() error { return e.Err }

func (e *DataSourceError) Is(target error) bool { return target == ErrDataSource }

// JoinKeyMismatchError 连接键列在某一侧不存在（表结构漂移）
type JoinKeyMismatchError struct {
	Table string
	Key   string
}

func (e *JoinKeyMismatchError) Error() string {
	return fmt.Sprintf("join key %q missing in table %q", e.Key, e.Table)
}

func (e *JoinKeyMismatchError) Is(target error) bool { return target == ErrJoinKeyMismatch }

// InsufficientSampleSizeError 请求的抽样数量超过了可抽样的行数
type InsufficientSampleSizeError struct {
	Requested  int
	Population int
}

func (e *InsufficientSampleSizeError) Error() string {
	return fmt.Sprintf("cannot sample %d rows without replacement from %d rows", e.Requested, e.Population)
}

func (e *InsufficientSampleSizeError) Is(target error) bool { return target == ErrInsufficientSample }
