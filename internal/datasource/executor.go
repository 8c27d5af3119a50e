package datasource

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/worker"
)

// maxSafeInteger JavaScript 可精确表示的最大整数
const maxSafeInteger = 1<<53 - 1

// QueryResult 查询结果
type QueryResult struct {
	Fields []string         `json:"fields"`
	Data   []map[string]any `json:"data"`
}

// Executor SQL 执行契约
type Executor interface {
	Execute(ctx context.Context, ds *model.Datasource, sql string) (*QueryResult, error)
}

// GormExecutor 基于 gorm 的 SQL 执行器，查询在协程池中执行
type GormExecutor struct {
	connector *Connector
	pool      *worker.Pool
}

// NewGormExecutor 创建 SQL 执行器
func NewGormExecutor(connector *Connector, pool *worker.Pool) *GormExecutor {
	return &GormExecutor{connector: connector, pool: pool}
}

// Execute 执行查询
func (e *GormExecutor) Execute(ctx context.Context, ds *model.Datasource, query string) (*QueryResult, error) {
	db, err := e.connector.Open(ds)
	if err != nil {
		return nil, err
	}
	return worker.Call(ctx, e.pool, func(ctx context.Context) (*QueryResult, error) {
		rows, err := db.WithContext(ctx).Raw(query).Rows()
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return ScanRows(rows)
	})
}

// ScanRows 读取全部行，大整数转为字符串
func ScanRows(rows *sql.Rows) (*QueryResult, error) {
	fields, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	result := &QueryResult{Fields: fields, Data: make([]map[string]any, 0)}

	values := make([]any, len(fields))
	ptrs := make([]any, len(fields))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]any, len(fields))
		for i, f := range fields {
			row[f] = FormatValue(values[i])
		}
		result.Data = append(result.Data, row)
	}
	return result, rows.Err()
}

// FormatValue 转为可直接 JSON 序列化的值，超出 JS 安全范围的整数转为字符串
func FormatValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case []byte:
		return formatNumeric(string(val))
	case int64:
		if val > maxSafeInteger || val < -maxSafeInteger {
			return fmt.Sprintf("%d", val)
		}
		return val
	case uint64:
		if val > maxSafeInteger {
			return fmt.Sprintf("%d", val)
		}
		return val
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Sprintf("%v", val)
		}
		return val
	case time.Time:
		return val.Format("2006-01-02 15:04:05")
	default:
		return val
	}
}

// formatNumeric 驱动以字节返回的整数按大小处理，其余保留字符串
func formatNumeric(s string) any {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || strings.ContainsAny(trimmed, ".eE") {
		return s
	}
	n, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return s
	}
	if n.IsInt64() && n.Int64() <= maxSafeInteger && n.Int64() >= -maxSafeInteger {
		return n.Int64()
	}
	return trimmed
}
