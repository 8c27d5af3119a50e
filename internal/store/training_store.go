package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/superfm831010/SQLBothp/internal/model"

	"gorm.io/gorm"
)

// TrainingStore SQL 示例存储
type TrainingStore struct {
	db *gorm.DB
}

// NewTrainingStore 创建 SQL 示例存储
func NewTrainingStore(db *gorm.DB) *TrainingStore {
	return &TrainingStore{db: db}
}

// Candidates 工作空间内已启用且属于数据源或高级应用的示例，两者都为空时返回空
func (s *TrainingStore) Candidates(ctx context.Context, oid int64, datasource, application *int64) ([]*model.DataTraining, error) {
	if datasource == nil && application == nil {
		return nil, nil
	}
	qb := s.db.WithContext(ctx).Where("oid = ? AND enabled = ?", oid, true)
	switch {
	case datasource != nil && application != nil:
		qb = qb.Where("datasource = ? OR advanced_application = ?", *datasource, *application)
	case datasource != nil:
		qb = qb.Where("datasource = ?", *datasource)
	default:
		qb = qb.Where("advanced_application = ?", *application)
	}
	var rows []*model.DataTraining
	err := qb.Order("id ASC").Find(&rows).Error
	return rows, err
}

// ByIDs 按ID查询
func (s *TrainingStore) ByIDs(ctx context.Context, ids []int64) ([]*model.DataTraining, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*model.DataTraining
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

// Page 分页查询
func (s *TrainingStore) Page(ctx context.Context, oid int64, q PageQuery) ([]*model.DataTraining, int64, error) {
	qb := s.db.WithContext(ctx).Model(&model.DataTraining{}).Where("oid = ?", oid)
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		qb = qb.Where("LOWER(question) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}

	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []*model.DataTraining
	err := qb.Order("id DESC").Offset(q.offset()).Limit(q.limit()).Find(&rows).Error
	return rows, total, err
}

// Get 获取示例
func (s *TrainingStore) Get(ctx context.Context, oid, id int64) (*model.DataTraining, error) {
	var row model.DataTraining
	if err := s.db.WithContext(ctx).Where("id = ? AND oid = ?", id, oid).First(&row).Error; err != nil {
		return nil, notFound(err, fmt.Sprintf("data training %d", id))
	}
	return &row, nil
}

// QuestionExists 同一作用域内是否已存在相同问题
func (s *TrainingStore) QuestionExists(ctx context.Context, row *model.DataTraining) (bool, error) {
	qb := s.db.WithContext(ctx).Model(&model.DataTraining{}).
		Where("oid = ? AND question = ?", row.OID, strings.TrimSpace(row.Question))
	if row.ID > 0 {
		qb = qb.Where("id <> ?", row.ID)
	}
	if row.Datasource != nil {
		qb = qb.Where("datasource = ?", *row.Datasource)
	} else {
		qb = qb.Where("datasource IS NULL")
	}
	if row.AdvancedApplication != nil {
		qb = qb.Where("advanced_application = ?", *row.AdvancedApplication)
	} else {
		qb = qb.Where("advanced_application IS NULL")
	}
	var count int64
	err := qb.Count(&count).Error
	return count > 0, err
}

// Save 创建或更新，问题或答案变化时清空向量，返回是否需要重新计算
func (s *TrainingStore) Save(ctx context.Context, row *model.DataTraining) (bool, error) {
	db := s.db.WithContext(ctx)
	if row.ID == 0 {
		now := time.Now()
		row.CreateTime = &now
		row.Embedding = nil
		return true, db.Create(row).Error
	}

	var old model.DataTraining
	if err := db.Where("id = ? AND oid = ?", row.ID, row.OID).First(&old).Error; err != nil {
		return false, notFound(err, fmt.Sprintf("data training %d", row.ID))
	}
	columns := []string{"question", "description", "datasource", "advanced_application", "enabled"}
	stale := old.Question != row.Question || old.Description != row.Description
	if stale {
		row.Embedding = nil
		columns = append(columns, "embedding")
	}
	return stale, db.Model(&model.DataTraining{ID: row.ID}).Select(columns).Updates(row).Error
}

// Delete 批量删除，返回实际删除的ID
func (s *TrainingStore) Delete(ctx context.Context, oid int64, ids []int64) ([]int64, error) {
	var removed []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.DataTraining{}).Where("oid = ? AND id IN ?", oid, ids).Pluck("id", &removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("id IN ?", removed).Delete(&model.DataTraining{}).Error
	})
	return removed, err
}

// SetEnabled 启用或停用
func (s *TrainingStore) SetEnabled(ctx context.Context, oid, id int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&model.DataTraining{}).
		Where("oid = ? AND id = ?", oid, id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, fmt.Sprintf("data training %d", id))
	}
	return nil
}

// MissingEmbedding 尚未计算向量的行
func (s *TrainingStore) MissingEmbedding(ctx context.Context) ([]*model.DataTraining, error) {
	var rows []*model.DataTraining
	err := s.db.WithContext(ctx).Where("embedding IS NULL").Order("id ASC").Find(&rows).Error
	return rows, err
}

// UpdateEmbedding 保存向量
func (s *TrainingStore) UpdateEmbedding(ctx context.Context, id int64, vec []float32) error {
	return s.db.WithContext(ctx).Model(&model.DataTraining{ID: id}).
		Select("embedding").
		Updates(&model.DataTraining{Embedding: vec}).Error
}
