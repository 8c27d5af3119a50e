package logic

import (
	"context"
	"errors"
	"strings"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/svc"
	"github.com/superfm831010/SQLBothp/internal/types"
	"github.com/superfm831010/SQLBothp/internal/validate"

	"go.uber.org/zap"
)

// DataTrainingLogic SQL 示例管理
type DataTrainingLogic struct {
	ctx   context.Context
	scope ctxutil.Scope
}

// NewDataTrainingLogic 创建 SQL 示例逻辑
func NewDataTrainingLogic(ctx context.Context, scope ctxutil.Scope) *DataTrainingLogic {
	return &DataTrainingLogic{ctx: ctx, scope: scope}
}

// DataTrainingReq 创建或更新 SQL 示例，ID 为 0 时创建
type DataTrainingReq struct {
	ID                  int64  `json:"id"`
	Question            string `json:"question"`
	Description         string `json:"description"`
	Datasource          *int64 `json:"datasource"`
	AdvancedApplication *int64 `json:"advanced_application"`
	Enabled             *bool  `json:"enabled"`
}

// DataTrainingInfo SQL 示例及数据源名称
type DataTrainingInfo struct {
	*model.DataTraining
	DatasourceName string `json:"datasource_name"`
}

// Page 分页查询
func (l *DataTrainingLogic) Page(req *PageReq) ([]*DataTrainingInfo, int64, error) {
	rows, total, err := svc.Ctx.Trainings.Page(l.ctx, l.scope.WorkspaceID(), req.query())
	if err != nil {
		return nil, 0, err
	}
	names, err := NewTerminologyLogic(l.ctx, l.scope).datasourceNames()
	if err != nil {
		return nil, 0, err
	}
	out := make([]*DataTrainingInfo, 0, len(rows))
	for _, row := range rows {
		item := &DataTrainingInfo{DataTraining: row}
		if row.Datasource != nil {
			item.DatasourceName = names[*row.Datasource]
		}
		out = append(out, item)
	}
	return out, total, nil
}

// Get 获取单个示例
func (l *DataTrainingLogic) Get(id int64) (*model.DataTraining, error) {
	return svc.Ctx.Trainings.Get(l.ctx, l.scope.WorkspaceID(), id)
}

// Save 创建或更新，问题或答案变化时在后台重新计算向量
func (l *DataTrainingLogic) Save(req *DataTrainingReq) (int64, error) {
	row := &validate.Row{
		Question:            req.Question,
		Answer:              req.Description,
		Enabled:             req.Enabled,
		ResolvedDatasource:  req.Datasource,
		ResolvedApplication: req.AdvancedApplication,
	}
	if errs := validate.Check(nil, row, formTable); len(errs) > 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, errs[0], strings.Join(errs, "; "))
	}
	if req.Datasource != nil {
		if _, err := svc.Ctx.Datasources.Get(l.ctx, l.scope.WorkspaceID(), *req.Datasource); err != nil {
			return 0, err
		}
	}
	return l.save(req.ID, row)
}

// formTable 表单里数据源与高级应用已是 ID，只校验必填
var formTable = map[validate.Field]validate.Func{
	validate.FieldQuestion: validate.DataTraining[validate.FieldQuestion],
	validate.FieldAnswer:   validate.DataTraining[validate.FieldAnswer],
	validate.FieldApplication: func(_ *validate.Env, row *validate.Row) error {
		if row.ResolvedDatasource == nil && row.ResolvedApplication == nil {
			return errors.New("数据源和高级应用不能同时为空")
		}
		return nil
	},
}

func (l *DataTrainingLogic) save(id int64, row *validate.Row) (int64, error) {
	rec := &model.DataTraining{
		ID:                  id,
		OID:                 l.scope.WorkspaceID(),
		Question:            strings.TrimSpace(row.Question),
		Description:         strings.TrimSpace(row.Answer),
		Enabled:             row.IsEnabled(),
		Datasource:          row.ResolvedDatasource,
		AdvancedApplication: row.ResolvedApplication,
	}
	exists, err := svc.Ctx.Trainings.QuestionExists(l.ctx, rec)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "问题已存在", rec.Question)
	}

	if _, err := svc.Ctx.Trainings.Save(l.ctx, rec); err != nil {
		return 0, err
	}
	// 作用域可能变化，总是刷新索引
	SubmitTrainings([]int64{rec.ID})

	logger.Info("保存SQL示例", append(l.scope.Fields(), zap.Int64("id", rec.ID))...)
	return rec.ID, nil
}

// Delete 批量删除
func (l *DataTrainingLogic) Delete(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	removed, err := svc.Ctx.Trainings.Delete(l.ctx, l.scope.WorkspaceID(), ids)
	if err != nil {
		return err
	}
	RemoveVectors(svc.Ctx.Config.Qdrant.DataTrainingCollection, removed)
	return nil
}

// Enable 启用或停用
func (l *DataTrainingLogic) Enable(id int64, enabled bool) error {
	return svc.Ctx.Trainings.SetEnabled(l.ctx, l.scope.WorkspaceID(), id, enabled)
}

// BatchCreate 批量导入
func (l *DataTrainingLogic) BatchCreate(rows []*validate.Row) (*BatchResult, error) {
	result := &BatchResult{OriginalCount: len(rows), FailedRecords: []FailedRecord{}}
	if len(rows) == 0 {
		return result, nil
	}

	seen := make(map[string]struct{}, len(rows))
	unique := make([]*validate.Row, 0, len(rows))
	for _, row := range rows {
		key := row.TrainingKey()
		if _, ok := seen[key]; ok {
			result.DuplicateCount++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, row)
	}
	result.DeduplicatedCount = len(unique)

	list, err := svc.Ctx.Datasources.List(l.ctx, l.scope.WorkspaceID())
	if err != nil {
		return nil, err
	}
	env := &validate.Env{Datasources: make(map[string]int64, len(list))}
	for _, ds := range list {
		env.Datasources[strings.TrimSpace(ds.Name)] = ds.ID
	}

	for i, row := range unique {
		if errs := validate.Check(env, row, validate.DataTraining); len(errs) > 0 {
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Data: row, Errors: errs})
			continue
		}
		if _, err := l.save(0, row); err != nil {
			logger.Debug("导入SQL示例失败", zap.Int("row", i), zap.Error(err))
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Data: row, Errors: []string{types.Message(err)}})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}
