package store

import (
	"context"
	"errors"
	"testing"

	"github.com/superfm831010/SQLBothp/internal/model"
	"github.com/superfm831010/SQLBothp/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// 内存库只在单连接内可见
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(model.All()...))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

func ptr[T any](v T) *T { return &v }

func TestChatStore_SetLineageOnce(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore(newTestDB(t))

	chat := &model.Chat{OID: 1, CreateBy: 1, Brief: "sales"}
	require.NoError(t, s.CreateChat(ctx, chat))
	base := &model.ChatRecord{ChatID: chat.ID, Question: "sales by region"}
	require.NoError(t, s.CreateRecord(ctx, base))

	require.NoError(t, s.SetLineage(ctx, base.ID, LineageAnalysis, 100))

	err := s.SetLineage(ctx, base.ID, LineageAnalysis, 200)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrLineage))

	got, err := s.GetRecord(ctx, base.ID)
	require.NoError(t, err)
	require.NotNil(t, got.AnalysisRecordID)
	assert.Equal(t, int64(100), *got.AnalysisRecordID)

	// 不同种类的指针互不影响
	require.NoError(t, s.SetLineage(ctx, base.ID, LineagePredict, 300))

	err = s.SetLineage(ctx, 9999, LineageAnalysis, 1)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	err = s.SetLineage(ctx, base.ID, Lineage("question"), 1)
	assert.True(t, errors.Is(err, types.ErrLineage))
}

func TestChatStore_RecordLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewChatStore(newTestDB(t))

	chat := &model.Chat{OID: 1, CreateBy: 7, Brief: "first"}
	require.NoError(t, s.CreateChat(ctx, chat))

	r1 := &model.ChatRecord{ChatID: chat.ID, Question: "q1"}
	r2 := &model.ChatRecord{ChatID: chat.ID, Question: "q2"}
	require.NoError(t, s.CreateRecord(ctx, r1))
	require.NoError(t, s.CreateRecord(ctx, r2))

	require.NoError(t, s.SaveStage(ctx, r1.ID, map[string]any{"sql": "SELECT 1", "chart": `{"type":"table"}`}))
	require.NoError(t, s.Finish(ctx, r2.ID, "boom"))

	latest, err := s.LatestRecord(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, r2.ID, latest.ID)
	assert.True(t, latest.Finish)
	assert.Equal(t, "boom", latest.Error)

	chartRec, err := s.LatestChartRecord(ctx, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, r1.ID, chartRec.ID)
	assert.Equal(t, "SELECT 1", chartRec.SQL)

	require.NoError(t, s.RenameChat(ctx, 1, chat.ID, "renamed"))
	got, err := s.GetChat(ctx, 1, chat.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Brief)

	_, err = s.GetChat(ctx, 2, chat.ID)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	list, err := s.ListChats(ctx, 1, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteChat(ctx, 1, chat.ID))
	records, err := s.ListRecords(ctx, chat.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestTerminologyStore_SaveAndScope(t *testing.T) {
	ctx := context.Background()
	s := NewTerminologyStore(newTestDB(t))

	gdp := &model.Terminology{OID: 1, Word: "GDP", Description: "国内生产总值", Enabled: true}
	res, err := s.Save(ctx, gdp, []string{"国内生产总值"})
	require.NoError(t, err)
	assert.Len(t, res.Stale, 2)

	arr := &model.Terminology{OID: 1, Word: "ARR", Description: "年度经常性收入", Enabled: true,
		SpecificDS: true, DatasourceIDs: []int64{7}}
	_, err = s.Save(ctx, arr, nil)
	require.NoError(t, err)

	rows, err := s.Candidates(ctx, 1, ptr(int64(7)))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rows, err = s.Candidates(ctx, 1, ptr(int64(9)))
	require.NoError(t, err)
	for _, row := range rows {
		assert.NotEqual(t, "ARR", row.Word)
	}

	require.NoError(t, s.UpdateEmbedding(ctx, gdp.ID, []float32{1, 0}))
	missing, err := s.MissingEmbedding(ctx)
	require.NoError(t, err)
	assert.Len(t, missing, 2)

	// 描述变化清空向量并替换同义词
	gdp.Description = "Gross Domestic Product"
	res, err = s.Save(ctx, gdp, []string{"生产总值"})
	require.NoError(t, err)
	assert.Contains(t, res.Stale, gdp.ID)
	assert.Len(t, res.Removed, 1)

	root, children, err := s.Get(ctx, 1, gdp.ID)
	require.NoError(t, err)
	assert.Nil(t, root.Embedding)
	require.Len(t, children, 1)
	assert.Equal(t, "生产总值", children[0].Word)

	clash, err := s.FindWords(ctx, 1, []string{"gdp"}, 0)
	require.NoError(t, err)
	assert.Len(t, clash, 1)
	clash, err = s.FindWords(ctx, 1, []string{"gdp"}, gdp.ID)
	require.NoError(t, err)
	assert.Empty(t, clash)

	removed, err := s.Delete(ctx, 1, []int64{gdp.ID})
	require.NoError(t, err)
	assert.Len(t, removed, 2)
}

func TestTrainingStore_CandidatesScope(t *testing.T) {
	ctx := context.Background()
	s := NewTrainingStore(newTestDB(t))

	for _, row := range []*model.DataTraining{
		{OID: 1, Question: "各地区销售额", Description: "SELECT region, SUM(amount) FROM sales GROUP BY region", Enabled: true, Datasource: ptr(int64(7))},
		{OID: 1, Question: "月活用户", Description: "SELECT COUNT(*) FROM users", Enabled: true, AdvancedApplication: ptr(int64(3))},
		{OID: 1, Question: "停用示例", Description: "SELECT 1", Enabled: false, Datasource: ptr(int64(7))},
	} {
		_, err := s.Save(ctx, row)
		require.NoError(t, err)
	}

	rows, err := s.Candidates(ctx, 1, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = s.Candidates(ctx, 1, ptr(int64(7)), nil)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "各地区销售额", rows[0].Question)

	rows, err = s.Candidates(ctx, 1, ptr(int64(7)), ptr(int64(3)))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	exists, err := s.QuestionExists(ctx, &model.DataTraining{OID: 1, Question: "月活用户", AdvancedApplication: ptr(int64(3))})
	require.NoError(t, err)
	assert.True(t, exists)
}
