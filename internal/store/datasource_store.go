package store

import (
	"context"
	"fmt"
	"time"

	"github.com/superfm831010/SQLBothp/internal/model"

	"gorm.io/gorm"
)

// DatasourceStore 数据源存储
type DatasourceStore struct {
	db *gorm.DB
}

// NewDatasourceStore 创建数据源存储
func NewDatasourceStore(db *gorm.DB) *DatasourceStore {
	return &DatasourceStore{db: db}
}

// Get 获取数据源
func (s *DatasourceStore) Get(ctx context.Context, oid, id int64) (*model.Datasource, error) {
	var ds model.Datasource
	if err := s.db.WithContext(ctx).Where("id = ? AND oid = ?", id, oid).First(&ds).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("datasource %d", id))
	}
	return &ds, nil
}

// List 工作空间内的数据源
func (s *DatasourceStore) List(ctx context.Context, oid int64) ([]*model.Datasource, error) {
	var list []*model.Datasource
	err := s.db.WithContext(ctx).Where("oid = ?", oid).Order("id ASC").Find(&list).Error
	return list, err
}

// Create 创建数据源
func (s *DatasourceStore) Create(ctx context.Context, ds *model.Datasource) error {
	if ds.CreateTime == nil {
		now := time.Now()
		ds.CreateTime = &now
	}
	return s.db.WithContext(ctx).Create(ds).Error
}
