// Package datasource 问数目标数据源：连接、执行 SQL、读取表结构
package datasource

import (
	"fmt"
	"sync"

	"github.com/superfm831010/SQLBothp/common/config"
	"github.com/superfm831010/SQLBothp/common/database"
	"github.com/superfm831010/SQLBothp/internal/model"

	"gorm.io/gorm"
)

// Connector 按数据源缓存 gorm 连接
type Connector struct {
	mu    sync.Mutex
	conns map[int64]*conn
}

type conn struct {
	dsn string
	db  *gorm.DB
}

// NewConnector 创建连接缓存
func NewConnector() *Connector {
	return &Connector{conns: make(map[int64]*conn)}
}

// driver 数据源类型到 gorm 驱动名
func driver(typ string) (string, error) {
	switch typ {
	case "mysql", "doris", "starrocks":
		return "mysql", nil
	case "pg", "postgres", "postgresql", "redshift", "kingbase":
		return "postgres", nil
	case "sqlite":
		return "sqlite", nil
	default:
		return "", fmt.Errorf("暂不支持的数据源类型: %s", typ)
	}
}

// dbConfig 数据源连接配置
func dbConfig(ds *model.Datasource) (*config.DatabaseConfig, error) {
	drv, err := driver(ds.Type)
	if err != nil {
		return nil, err
	}
	return &config.DatabaseConfig{
		Driver:       drv,
		Host:         ds.Host,
		Port:         ds.Port,
		Username:     ds.Username,
		Password:     ds.Password,
		Database:     ds.Database,
		MaxIdleConns: 2,
		MaxOpenConns: 10,
		LogLevel:     "warn",
	}, nil
}

// Open 获取数据源连接，连接信息变化时重建
func (c *Connector) Open(ds *model.Datasource) (*gorm.DB, error) {
	cfg, err := dbConfig(ds)
	if err != nil {
		return nil, err
	}
	dsn := cfg.Driver + "|" + database.DSN(cfg)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cached, ok := c.conns[ds.ID]; ok {
		if cached.dsn == dsn {
			return cached.db, nil
		}
		closeDB(cached.db)
		delete(c.conns, ds.ID)
	}

	db, err := database.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("连接数据源 %s 失败: %w", ds.Name, err)
	}
	c.conns[ds.ID] = &conn{dsn: dsn, db: db}
	return db, nil
}

// Close 关闭全部连接
func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, cached := range c.conns {
		closeDB(cached.db)
		delete(c.conns, id)
	}
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
