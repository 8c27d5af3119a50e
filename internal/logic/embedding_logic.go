package logic

import (
	"context"
	"errors"
	"fmt"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/svc"
	"github.com/superfm831010/SQLBothp/internal/vector"

	"go.uber.org/zap"
)

// 每次向量计算处理的行数
const embeddingChunk = 200

// EmbeddingLogic 术语与 SQL 示例的向量计算及索引同步
type EmbeddingLogic struct {
	ctx context.Context
}

// NewEmbeddingLogic 创建向量逻辑
func NewEmbeddingLogic(ctx context.Context) *EmbeddingLogic {
	return &EmbeddingLogic{ctx: ctx}
}

// Enabled 是否配置了向量模型
func (l *EmbeddingLogic) Enabled() bool {
	return svc.Ctx != nil && svc.Ctx.Embedder != nil
}

// SubmitTerminologies 后台同步术语向量，不等待结果
func SubmitTerminologies(ids []int64) {
	submit("terminology-embedding", ids, func(l *EmbeddingLogic, ids []int64) error {
		return l.SyncTerminologies(ids)
	})
}

// SubmitTrainings 后台同步 SQL 示例向量，不等待结果
func SubmitTrainings(ids []int64) {
	submit("data-training-embedding", ids, func(l *EmbeddingLogic, ids []int64) error {
		return l.SyncTrainings(ids)
	})
}

// RemoveVectors 后台删除索引中的向量点
func RemoveVectors(collection string, ids []int64) {
	if svc.Ctx == nil || svc.Ctx.Index == nil || len(ids) == 0 {
		return
	}
	task := func() {
		if err := svc.Ctx.Index.Delete(context.Background(), collection, ids); err != nil {
			logger.Warn("删除向量失败", zap.String("collection", collection), zap.Int64s("ids", ids), zap.Error(err))
		}
	}
	if err := svc.Ctx.Pool.Submit("vector-delete", task); err != nil {
		task()
	}
}

func submit(name string, ids []int64, fn func(*EmbeddingLogic, []int64) error) {
	if svc.Ctx == nil || svc.Ctx.Embedder == nil || len(ids) == 0 {
		return
	}
	task := func() {
		if err := fn(NewEmbeddingLogic(context.Background()), ids); err != nil {
			logger.Error("向量计算失败", zap.String("task", name), zap.Int64s("ids", ids), zap.Error(err))
		}
	}
	// 池已关闭时同步执行
	if err := svc.Ctx.Pool.Submit(name, task); err != nil {
		task()
	}
}

// SyncTerminologies 计算缺失的术语向量并写入索引
func (l *EmbeddingLogic) SyncTerminologies(ids []int64) error {
	if !l.Enabled() || len(ids) == 0 {
		return nil
	}
	rows, err := svc.Ctx.Terminologies.ByIDs(l.ctx, ids)
	if err != nil {
		return err
	}

	var missing []*model.Terminology
	for _, row := range rows {
		if len(row.Embedding) == 0 {
			missing = append(missing, row)
		}
	}
	if len(missing) > 0 {
		words := utils.SliceMap(missing, func(_ int, r *model.Terminology) string { return r.Word })
		vecs, err := svc.Ctx.Embedder.EmbedDocuments(l.ctx, words)
		if err != nil {
			return err
		}
		if len(vecs) != len(missing) {
			return fmt.Errorf("向量数量不匹配: %d != %d", len(vecs), len(missing))
		}
		for i, row := range missing {
			if err := svc.Ctx.Terminologies.UpdateEmbedding(l.ctx, row.ID, vecs[i]); err != nil {
				return err
			}
			row.Embedding = vecs[i]
		}
	}

	if svc.Ctx.Index == nil {
		return nil
	}
	points := make([]vector.Point, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) > 0 {
			points = append(points, vector.Point{ID: row.ID, Vector: row.Embedding, Payload: TerminologyPayload(row)})
		}
	}
	return svc.Ctx.Index.Upsert(l.ctx, svc.Ctx.Config.Qdrant.TerminologyCollection, points)
}

// SyncTrainings 计算缺失的 SQL 示例向量并写入索引
func (l *EmbeddingLogic) SyncTrainings(ids []int64) error {
	if !l.Enabled() || len(ids) == 0 {
		return nil
	}
	rows, err := svc.Ctx.Trainings.ByIDs(l.ctx, ids)
	if err != nil {
		return err
	}

	var missing []*model.DataTraining
	for _, row := range rows {
		if len(row.Embedding) == 0 {
			missing = append(missing, row)
		}
	}
	if len(missing) > 0 {
		questions := utils.SliceMap(missing, func(_ int, r *model.DataTraining) string { return r.Question })
		vecs, err := svc.Ctx.Embedder.EmbedDocuments(l.ctx, questions)
		if err != nil {
			return err
		}
		if len(vecs) != len(missing) {
			return fmt.Errorf("向量数量不匹配: %d != %d", len(vecs), len(missing))
		}
		for i, row := range missing {
			if err := svc.Ctx.Trainings.UpdateEmbedding(l.ctx, row.ID, vecs[i]); err != nil {
				return err
			}
			row.Embedding = vecs[i]
		}
	}

	if svc.Ctx.Index == nil {
		return nil
	}
	points := make([]vector.Point, 0, len(rows))
	for _, row := range rows {
		if len(row.Embedding) > 0 {
			points = append(points, vector.Point{ID: row.ID, Vector: row.Embedding, Payload: TrainingPayload(row)})
		}
	}
	return svc.Ctx.Index.Upsert(l.ctx, svc.Ctx.Config.Qdrant.DataTrainingCollection, points)
}

// FillEmptyEmbeddings 补齐全部缺失的向量，返回处理的行数
func (l *EmbeddingLogic) FillEmptyEmbeddings() (int, error) {
	if !l.Enabled() {
		return 0, nil
	}
	var errs []error
	total := 0

	terms, err := svc.Ctx.Terminologies.MissingEmbedding(l.ctx)
	if err != nil {
		return 0, err
	}
	termIDs := utils.SliceMap(terms, func(_ int, r *model.Terminology) int64 { return r.ID })
	for _, chunk := range utils.SliceChunk(termIDs, embeddingChunk) {
		if err := l.SyncTerminologies(chunk); err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(chunk)
	}

	trainings, err := svc.Ctx.Trainings.MissingEmbedding(l.ctx)
	if err != nil {
		return total, errors.Join(append(errs, err)...)
	}
	trainingIDs := utils.SliceMap(trainings, func(_ int, r *model.DataTraining) int64 { return r.ID })
	for _, chunk := range utils.SliceChunk(trainingIDs, embeddingChunk) {
		if err := l.SyncTrainings(chunk); err != nil {
			errs = append(errs, err)
			continue
		}
		total += len(chunk)
	}

	logger.Info("向量补齐完成", zap.Int("terminology", len(termIDs)), zap.Int("data_training", len(trainingIDs)),
		zap.Int("filled", total))
	return total, errors.Join(errs...)
}

// TerminologyPayload 术语向量点的过滤字段，数组元素逐个匹配
func TerminologyPayload(row *model.Terminology) map[string]any {
	global := int64(1)
	if row.SpecificDS {
		global = 0
	}
	ids := make([]any, 0, len(row.DatasourceIDs))
	for _, id := range row.DatasourceIDs {
		ids = append(ids, id)
	}
	return map[string]any{
		"oid":            row.OID,
		"global":         global,
		"datasource_ids": ids,
	}
}

// TrainingPayload SQL 示例向量点的过滤字段
func TrainingPayload(row *model.DataTraining) map[string]any {
	payload := map[string]any{"oid": row.OID}
	if row.Datasource != nil {
		payload["datasource"] = *row.Datasource
	}
	if row.AdvancedApplication != nil {
		payload["advanced_application"] = *row.AdvancedApplication
	}
	return payload
}
