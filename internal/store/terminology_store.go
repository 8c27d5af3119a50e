package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/superfm831010/SQLBothp/internal/model"

	"gorm.io/gorm"
)

// TerminologyStore 术语存储，主词与同义词同表，同义词通过 pid 关联
type TerminologyStore struct {
	db *gorm.DB
}

// NewTerminologyStore 创建术语存储
func NewTerminologyStore(db *gorm.DB) *TerminologyStore {
	return &TerminologyStore{db: db}
}

// SaveResult 保存结果
type SaveResult struct {
	ID      int64   // 主词ID
	Stale   []int64 // 需要重新计算向量的行
	Removed []int64 // 被删除的行
}

// Candidates 工作空间内已启用且对数据源可见的全部术语行
func (s *TerminologyStore) Candidates(ctx context.Context, oid int64, datasource *int64) ([]*model.Terminology, error) {
	var rows []*model.Terminology
	err := s.db.WithContext(ctx).
		Where("oid = ? AND enabled = ?", oid, true).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := rows[:0]
	for _, row := range rows {
		if row.InScope(datasource) {
			out = append(out, row)
		}
	}
	return out, nil
}

// Clusters 主词及其全部同义词
func (s *TerminologyStore) Clusters(ctx context.Context, rootIDs []int64) ([]*model.Terminology, error) {
	if len(rootIDs) == 0 {
		return nil, nil
	}
	var rows []*model.Terminology
	err := s.db.WithContext(ctx).
		Where("id IN ? OR pid IN ?", rootIDs, rootIDs).
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// ByIDs 按ID查询
func (s *TerminologyStore) ByIDs(ctx context.Context, ids []int64) ([]*model.Terminology, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []*model.Terminology
	err := s.db.WithContext(ctx).Where("id IN ?", ids).Order("id ASC").Find(&rows).Error
	return rows, err
}

// Page 分页查询主词，关键字匹配主词或同义词
func (s *TerminologyStore) Page(ctx context.Context, oid int64, q PageQuery) ([]*model.Terminology, int64, error) {
	qb := s.db.WithContext(ctx).Model(&model.Terminology{}).Where("oid = ? AND pid IS NULL", oid)
	if kw := strings.TrimSpace(q.Keyword); kw != "" {
		like := "%" + strings.ToLower(kw) + "%"
		sub := s.db.Model(&model.Terminology{}).Select("pid").
			Where("oid = ? AND pid IS NOT NULL AND LOWER(word) LIKE ?", oid, like)
		qb = qb.Where("LOWER(word) LIKE ? OR LOWER(description) LIKE ? OR id IN (?)", like, like, sub)
	}

	var total int64
	if err := qb.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var roots []*model.Terminology
	err := qb.Order("id DESC").Offset(q.offset()).Limit(q.limit()).Find(&roots).Error
	return roots, total, err
}

// Get 获取主词及同义词
func (s *TerminologyStore) Get(ctx context.Context, oid, id int64) (*model.Terminology, []*model.Terminology, error) {
	var root model.Terminology
	err := s.db.WithContext(ctx).Where("id = ? AND oid = ? AND pid IS NULL", id, oid).First(&root).Error
	if err != nil {
		return nil, nil, notFound(err, fmt.Sprintf("terminology %d", id))
	}
	children, err := s.Children(ctx, []int64{id})
	return &root, children, err
}

// Children 主词下的同义词
func (s *TerminologyStore) Children(ctx context.Context, rootIDs []int64) ([]*model.Terminology, error) {
	var rows []*model.Terminology
	if len(rootIDs) == 0 {
		return rows, nil
	}
	err := s.db.WithContext(ctx).Where("pid IN ?", rootIDs).Order("id ASC").Find(&rows).Error
	return rows, err
}

// FindWords 查询工作空间内与给定词相同的术语行（忽略大小写），排除 excludeRoot 所在的簇
func (s *TerminologyStore) FindWords(ctx context.Context, oid int64, words []string, excludeRoot int64) ([]*model.Terminology, error) {
	if len(words) == 0 {
		return nil, nil
	}
	lower := make([]string, 0, len(words))
	for _, w := range words {
		lower = append(lower, strings.ToLower(strings.TrimSpace(w)))
	}
	qb := s.db.WithContext(ctx).Where("oid = ? AND LOWER(word) IN ?", oid, lower)
	if excludeRoot > 0 {
		qb = qb.Where("id <> ? AND (pid IS NULL OR pid <> ?)", excludeRoot, excludeRoot)
	}
	var rows []*model.Terminology
	err := qb.Find(&rows).Error
	return rows, err
}

// Save 创建或更新主词，同义词整体替换。文本变化的行会清空向量
func (s *TerminologyStore) Save(ctx context.Context, root *model.Terminology, synonyms []string) (*SaveResult, error) {
	result := &SaveResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		root.PID = nil

		if root.ID == 0 {
			root.CreateTime = &now
			root.Embedding = nil
			if err := tx.Create(root).Error; err != nil {
				return err
			}
			result.Stale = append(result.Stale, root.ID)
		} else {
			var old model.Terminology
			if err := tx.Where("id = ? AND oid = ? AND pid IS NULL", root.ID, root.OID).First(&old).Error; err != nil {
				return notFound(err, fmt.Sprintf("terminology %d", root.ID))
			}
			columns := []string{"word", "description", "specific_ds", "datasource_ids", "enabled"}
			if old.Word != root.Word || old.Description != root.Description {
				root.Embedding = nil
				columns = append(columns, "embedding")
				result.Stale = append(result.Stale, root.ID)
			}
			if err := tx.Model(&model.Terminology{ID: root.ID}).Select(columns).Updates(root).Error; err != nil {
				return err
			}

			var removed []int64
			if err := tx.Model(&model.Terminology{}).Where("pid = ?", root.ID).Pluck("id", &removed).Error; err != nil {
				return err
			}
			if len(removed) > 0 {
				if err := tx.Where("id IN ?", removed).Delete(&model.Terminology{}).Error; err != nil {
					return err
				}
			}
			result.Removed = removed
		}

		for _, word := range synonyms {
			child := &model.Terminology{
				PID:           &root.ID,
				OID:           root.OID,
				CreateTime:    &now,
				Word:          word,
				Enabled:       root.Enabled,
				SpecificDS:    root.SpecificDS,
				DatasourceIDs: root.DatasourceIDs,
			}
			if err := tx.Create(child).Error; err != nil {
				return err
			}
			result.Stale = append(result.Stale, child.ID)
		}
		result.ID = root.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete 删除主词及其同义词，返回被删除的全部行ID
func (s *TerminologyStore) Delete(ctx context.Context, oid int64, ids []int64) ([]int64, error) {
	var removed []int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Terminology{}).
			Where("oid = ? AND (id IN ? OR pid IN ?)", oid, ids, ids).
			Pluck("id", &removed).Error; err != nil {
			return err
		}
		if len(removed) == 0 {
			return nil
		}
		return tx.Where("id IN ?", removed).Delete(&model.Terminology{}).Error
	})
	return removed, err
}

// SetEnabled 启用或停用主词及其同义词
func (s *TerminologyStore) SetEnabled(ctx context.Context, oid, id int64, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&model.Terminology{}).
		Where("oid = ? AND (id = ? OR pid = ?)", oid, id, id).
		Update("enabled", enabled)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, fmt.Sprintf("terminology %d", id))
	}
	return nil
}

// MissingEmbedding 尚未计算向量的行
func (s *TerminologyStore) MissingEmbedding(ctx context.Context) ([]*model.Terminology, error) {
	var rows []*model.Terminology
	err := s.db.WithContext(ctx).Where("embedding IS NULL").Order("id ASC").Find(&rows).Error
	return rows, err
}

// UpdateEmbedding 保存向量
func (s *TerminologyStore) UpdateEmbedding(ctx context.Context, id int64, vec []float32) error {
	return s.db.WithContext(ctx).Model(&model.Terminology{ID: id}).
		Select("embedding").
		Updates(&model.Terminology{Embedding: vec}).Error
}
