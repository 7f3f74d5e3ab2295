// Package database 从PostgreSQL读取数据源表
package database

import (
	"context"
	"fmt"
	"time"

	"OrderAtlas/src/utils"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Reader 以字符串记录的形式读取查询结果，类型转换交给加载器
type Reader struct {
	db *sqlx.DB
}

// Open 连接数据库，timeout 只作用于建立连接
func Open(ctx context.Context, dsn string, timeout time.Duration) (*Reader, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	return &Reader{db: db}, nil
}

// QueryRecords 执行查询，返回首行为列名的记录
func (r *Reader) QueryRecords(ctx context.Context, query string) ([][]string, error) {
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	return ScanRecords(rows)
}

func (r *Reader) Close() error {
	return r.db.Close()
}

// RowScanner 是 *sqlx.Rows 中用到的部分
type RowScanner interface {
	Columns() ([]string, error)
	Next() bool
	SliceScan() ([]interface{}, error)
	Err() error
}

// ScanRecords 将结果集转换为记录，NULL 转为空字符串
func ScanRecords(rows RowScanner) ([][]string, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	records := [][]string{cols}
	for rows.Next() {
		values, err := rows.SliceScan()
		if err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", len(records)-1, err)
		}
		record := make([]string, len(cols))
		for i, v := range values {
			if i < len(record) {
				record[i] = toString(v)
			}
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

func toString(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.Format(utils.TimeLayout)
	default:
		return fmt.Sprint(val)
	}
}
