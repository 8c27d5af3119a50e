package logic

import (
	"context"
	"strings"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/common/utils"
	"github.com/superfm831010/SQLBothp/internal/ctxutil"
	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/store"
	"github.com/superfm831010/SQLBothp/internal/svc"
	"github.com/superfm831010/SQLBothp/internal/types"
	"github.com/superfm831010/SQLBothp/internal/validate"

	"github.com/duke-git/lancet/v2/maputil"
	"go.uber.org/zap"
)

// TerminologyLogic 术语管理
type TerminologyLogic struct {
	ctx   context.Context
	scope ctxutil.Scope
}

// NewTerminologyLogic 创建术语逻辑
func NewTerminologyLogic(ctx context.Context, scope ctxutil.Scope) *TerminologyLogic {
	return &TerminologyLogic{ctx: ctx, scope: scope}
}

// TerminologyReq 创建或更新术语，ID 为 0 时创建
type TerminologyReq struct {
	ID            int64    `json:"id"`
	Word          string   `json:"word"`
	OtherWords    []string `json:"other_words"`
	Description   string   `json:"description"`
	SpecificDS    bool     `json:"specific_ds"`
	DatasourceIDs []int64  `json:"datasource_ids"`
	Enabled       *bool    `json:"enabled"`
}

// TerminologyInfo 术语及其同义词
type TerminologyInfo struct {
	*model.Terminology
	OtherWords      []string `json:"other_words"`
	DatasourceNames []string `json:"datasource_names"`
}

// PageReq 分页请求
type PageReq struct {
	Page     int    `query:"page"`
	PageSize int    `query:"pageSize"`
	Keyword  string `query:"keyword"`
}

func (r *PageReq) query() store.PageQuery {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.PageSize < 1 || r.PageSize > 100 {
		r.PageSize = 10
	}
	return store.PageQuery{Page: r.Page, PageSize: r.PageSize, Keyword: r.Keyword}
}

// BatchResult 批量导入结果
type BatchResult struct {
	SuccessCount      int            `json:"success_count"`
	FailedRecords     []FailedRecord `json:"failed_records"`
	DuplicateCount    int            `json:"duplicate_count"`
	OriginalCount     int            `json:"original_count"`
	DeduplicatedCount int            `json:"deduplicated_count"`
}

// FailedRecord 导入失败的行
type FailedRecord struct {
	Data   *validate.Row `json:"data"`
	Errors []string      `json:"errors"`
}

// Page 分页查询主词，附带同义词和数据源名称
func (l *TerminologyLogic) Page(req *PageReq) ([]*TerminologyInfo, int64, error) {
	oid := l.scope.WorkspaceID()
	roots, total, err := svc.Ctx.Terminologies.Page(l.ctx, oid, req.query())
	if err != nil {
		return nil, 0, err
	}
	list, err := l.fill(roots)
	return list, total, err
}

// Get 获取单个术语
func (l *TerminologyLogic) Get(id int64) (*TerminologyInfo, error) {
	root, children, err := svc.Ctx.Terminologies.Get(l.ctx, l.scope.WorkspaceID(), id)
	if err != nil {
		return nil, err
	}
	names, err := l.datasourceNames()
	if err != nil {
		return nil, err
	}
	return info(root, children, names), nil
}

func (l *TerminologyLogic) fill(roots []*model.Terminology) ([]*TerminologyInfo, error) {
	ids := utils.SliceMap(roots, func(_ int, r *model.Terminology) int64 { return r.ID })
	children, err := svc.Ctx.Terminologies.Children(l.ctx, ids)
	if err != nil {
		return nil, err
	}
	byRoot := make(map[int64][]*model.Terminology)
	for _, c := range children {
		byRoot[*c.PID] = append(byRoot[*c.PID], c)
	}
	names, err := l.datasourceNames()
	if err != nil {
		return nil, err
	}
	out := make([]*TerminologyInfo, 0, len(roots))
	for _, r := range roots {
		out = append(out, info(r, byRoot[r.ID], names))
	}
	return out, nil
}

func info(root *model.Terminology, children []*model.Terminology, names map[int64]string) *TerminologyInfo {
	out := &TerminologyInfo{
		Terminology:     root,
		OtherWords:      make([]string, 0, len(children)),
		DatasourceNames: make([]string, 0, len(root.DatasourceIDs)),
	}
	for _, c := range children {
		out.OtherWords = append(out.OtherWords, c.Word)
	}
	if root.SpecificDS {
		for _, id := range root.DatasourceIDs {
			if name, ok := names[id]; ok {
				out.DatasourceNames = append(out.DatasourceNames, name)
			}
		}
	}
	return out
}

// datasourceNames 工作空间内数据源 ID -> 名称
func (l *TerminologyLogic) datasourceNames() (map[int64]string, error) {
	list, err := svc.Ctx.Datasources.List(l.ctx, l.scope.WorkspaceID())
	if err != nil {
		return nil, err
	}
	out := make(map[int64]string, len(list))
	for _, ds := range list {
		out[ds.ID] = ds.Name
	}
	return out, nil
}

// Save 创建或更新术语，同义词整体替换，文本变化的行在后台重新计算向量
func (l *TerminologyLogic) Save(req *TerminologyReq) (int64, error) {
	row := &validate.Row{
		Word:                req.Word,
		Synonyms:            req.OtherWords,
		Description:         req.Description,
		SpecificDS:          req.SpecificDS,
		Enabled:             req.Enabled,
		ResolvedDatasources: utils.SliceUnique(req.DatasourceIDs),
	}
	if errs := validate.Check(nil, row, validate.TerminologyForm); len(errs) > 0 {
		return 0, types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, errs[0], strings.Join(errs, "; "))
	}
	return l.save(req.ID, row)
}

func (l *TerminologyLogic) save(id int64, row *validate.Row) (int64, error) {
	oid := l.scope.WorkspaceID()
	synonyms := row.CleanSynonyms()
	if err := l.checkClash(oid, id, row, synonyms); err != nil {
		return 0, err
	}

	root := &model.Terminology{
		ID:          id,
		OID:         oid,
		Word:        strings.TrimSpace(row.Word),
		Description: strings.TrimSpace(row.Description),
		Enabled:     row.IsEnabled(),
		SpecificDS:  row.SpecificDS,
	}
	if row.SpecificDS {
		root.DatasourceIDs = row.ResolvedDatasources
	}
	result, err := svc.Ctx.Terminologies.Save(l.ctx, root, synonyms)
	if err != nil {
		return 0, err
	}

	if len(result.Removed) > 0 {
		RemoveVectors(svc.Ctx.Config.Qdrant.TerminologyCollection, result.Removed)
	}
	// 主词作用域可能变化，即使文本未变也要刷新索引中的过滤字段
	SubmitTerminologies(utils.SliceUnique(append(result.Stale, result.ID)))

	logger.Info("保存术语", append(l.scope.Fields(), zap.Int64("id", result.ID), zap.Int("stale", len(result.Stale)))...)
	return result.ID, nil
}

// checkClash 同一工作空间内不能存在同名术语；指定数据源时只与全局术语及数据源有交集的术语比较
func (l *TerminologyLogic) checkClash(oid, id int64, row *validate.Row, synonyms []string) error {
	words := append([]string{strings.TrimSpace(row.Word)}, synonyms...)
	existing, err := svc.Ctx.Terminologies.FindWords(l.ctx, oid, words, id)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if !row.SpecificDS || !e.SpecificDS || overlaps(e.DatasourceIDs, row.ResolvedDatasources) {
			return types.NewAppErrorWithDetails(types.ErrCodeInvalidParameter, "术语已存在", e.Word)
		}
	}
	return nil
}

func overlaps(a, b []int64) bool {
	set := make(map[int64]struct{}, len(a))
	for _, id := range a {
		set[id] = struct{}{}
	}
	for _, id := range b {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

// Delete 删除术语及其同义词
func (l *TerminologyLogic) Delete(ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	removed, err := svc.Ctx.Terminologies.Delete(l.ctx, l.scope.WorkspaceID(), ids)
	if err != nil {
		return err
	}
	RemoveVectors(svc.Ctx.Config.Qdrant.TerminologyCollection, removed)
	return nil
}

// Enable 启用或停用
func (l *TerminologyLogic) Enable(id int64, enabled bool) error {
	return svc.Ctx.Terminologies.SetEnabled(l.ctx, l.scope.WorkspaceID(), id, enabled)
}

// BatchCreate 批量导入：先按词与数据源去重，再逐行校验，逐条保存，失败的行单独返回
func (l *TerminologyLogic) BatchCreate(rows []*validate.Row) (*BatchResult, error) {
	result := &BatchResult{OriginalCount: len(rows), FailedRecords: []FailedRecord{}}
	if len(rows) == 0 {
		return result, nil
	}

	seen := make(map[string]struct{}, len(rows))
	unique := make([]*validate.Row, 0, len(rows))
	for _, row := range rows {
		key := row.TerminologyKey()
		if _, ok := seen[key]; ok {
			result.DuplicateCount++
			continue
		}
		seen[key] = struct{}{}
		unique = append(unique, row)
	}
	result.DeduplicatedCount = len(unique)

	names, err := l.datasourceNames()
	if err != nil {
		return nil, err
	}
	env := &validate.Env{Datasources: make(map[string]int64, len(names))}
	maputil.ForEach(names, func(id int64, name string) {
		env.Datasources[strings.TrimSpace(name)] = id
	})

	for _, row := range unique {
		if errs := validate.Check(env, row, validate.Terminology); len(errs) > 0 {
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Data: row, Errors: errs})
			continue
		}
		if _, err := l.save(0, row); err != nil {
			result.FailedRecords = append(result.FailedRecords, FailedRecord{Data: row, Errors: []string{types.Message(err)}})
			continue
		}
		result.SuccessCount++
	}
	return result, nil
}
