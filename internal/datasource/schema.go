package datasource

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/worker"

	"gorm.io/gorm"
)

// SchemaReader 表结构读取契约
type SchemaReader interface {
	Schema(ctx context.Context, ds *model.Datasource) (string, error)
}

// MigratorSchemaReader 通过 gorm Migrator 读取表与字段，输出 M-Schema 文本
type MigratorSchemaReader struct {
	connector *Connector
	pool      *worker.Pool
}

// NewMigratorSchemaReader 创建表结构读取器
func NewMigratorSchemaReader(connector *Connector, pool *worker.Pool) *MigratorSchemaReader {
	return &MigratorSchemaReader{connector: connector, pool: pool}
}

// Schema 读取数据源全部表结构
func (r *MigratorSchemaReader) Schema(ctx context.Context, ds *model.Datasource) (string, error) {
	db, err := r.connector.Open(ds)
	if err != nil {
		return "", err
	}
	return worker.Call(ctx, r.pool, func(ctx context.Context) (string, error) {
		return ReadSchema(db.WithContext(ctx), ds)
	})
}

// Column 字段
type Column struct {
	Name       string
	Type       string
	PrimaryKey bool
	Comment    string
}

// Table 表
type Table struct {
	Name    string
	Columns []Column
}

// ReadSchema 读取并渲染 M-Schema
func ReadSchema(db *gorm.DB, ds *model.Datasource) (string, error) {
	migrator := db.Migrator()
	names, err := migrator.GetTables()
	if err != nil {
		return "", fmt.Errorf("读取表列表失败: %w", err)
	}
	sort.Strings(names)

	tables := make([]Table, 0, len(names))
	for _, name := range names {
		types, err := migrator.ColumnTypes(name)
		if err != nil {
			return "", fmt.Errorf("读取表 %s 字段失败: %w", name, err)
		}
		t := Table{Name: name}
		for _, ct := range types {
			col := Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
			if pk, ok := ct.PrimaryKey(); ok {
				col.PrimaryKey = pk
			}
			if comment, ok := ct.Comment(); ok {
				col.Comment = comment
			}
			t.Columns = append(t.Columns, col)
		}
		tables = append(tables, t)
	}
	return RenderMSchema(ds, tables), nil
}

// RenderMSchema 渲染 M-Schema 文本
func RenderMSchema(ds *model.Datasource, tables []Table) string {
	var sb strings.Builder
	sb.WriteString("【DB_ID】 ")
	sb.WriteString(ds.Database)
	sb.WriteString("\n【Schema】\n")
	for _, t := range tables {
		name := t.Name
		if ds.DBSchema != "" {
			name = ds.DBSchema + "." + name
		}
		sb.WriteString("# Table: ")
		sb.WriteString(name)
		sb.WriteString("\n[\n")
		for _, c := range t.Columns {
			sb.WriteString("(")
			sb.WriteString(c.Name)
			sb.WriteString(":")
			sb.WriteString(strings.ToUpper(c.Type))
			if c.PrimaryKey {
				sb.WriteString(", Primary key")
			}
			if c.Comment != "" {
				sb.WriteString(", ")
				sb.WriteString(c.Comment)
			}
			sb.WriteString("),\n")
		}
		sb.WriteString("]\n")
	}
	return sb.String()
}
