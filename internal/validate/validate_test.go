package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminologyRows(t *testing.T) {
	env := &Env{Datasources: map[string]int64{"销售库": 7, "财务库": 9}}

	t.Run("合法全局术语", func(t *testing.T) {
		row := &Row{Word: "GDP", Synonyms: []string{"国民生产", " "}, Description: "国内生产总值"}
		assert.Empty(t, Check(env, row, Terminology))
		assert.Nil(t, row.ResolvedDatasources)
		assert.Equal(t, []string{"国民生产"}, row.CleanSynonyms())
	})

	t.Run("收集全部错误", func(t *testing.T) {
		row := &Row{Word: " ", Description: ""}
		errs := Check(env, row, Terminology)
		require.Len(t, errs, 2)
		assert.Contains(t, errs[0], "术语不能为空")
		assert.Contains(t, errs[1], "术语描述不能为空")
	})

	t.Run("同义词重复", func(t *testing.T) {
		row := &Row{Word: "ARR", Synonyms: []string{"arr"}, Description: "x"}
		errs := Check(env, row, Terminology)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "不能重复")
	})

	t.Run("指定数据源解析名称", func(t *testing.T) {
		row := &Row{Word: "ARR", Description: "x", SpecificDS: true, Datasources: []string{"销售库", "销售库", ""}}
		assert.Empty(t, Check(env, row, Terminology))
		assert.Equal(t, []int64{7}, row.ResolvedDatasources)
	})

	t.Run("指定数据源但名称不存在", func(t *testing.T) {
		row := &Row{Word: "ARR", Description: "x", SpecificDS: true, Datasources: []string{"不存在"}}
		errs := Check(env, row, Terminology)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "数据源不存在")
	})

	t.Run("指定数据源但为空", func(t *testing.T) {
		row := &Row{Word: "ARR", Description: "x", SpecificDS: true}
		errs := Check(env, row, Terminology)
		require.Len(t, errs, 1)
		assert.Contains(t, errs[0], "数据源不能为空")
	})
}

func TestDataTrainingRows(t *testing.T) {
	env := &Env{Datasources: map[string]int64{"销售库": 7}}

	row := &Row{Question: "各地区销售额", Answer: "SELECT 1", Datasource: "销售库"}
	assert.Empty(t, Check(env, row, DataTraining))
	require.NotNil(t, row.ResolvedDatasource)
	assert.Equal(t, int64(7), *row.ResolvedDatasource)

	row = &Row{Question: "q", Answer: "SELECT 1", Application: "12"}
	assert.Empty(t, Check(env, row, DataTraining))
	require.NotNil(t, row.ResolvedApplication)
	assert.Equal(t, int64(12), *row.ResolvedApplication)

	row = &Row{Question: "q", Answer: "SELECT 1"}
	errs := Check(env, row, DataTraining)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "不能同时为空")

	row = &Row{Question: "", Answer: "", Application: "abc"}
	assert.Len(t, Check(env, row, DataTraining), 3)
}

func TestKeys(t *testing.T) {
	a := &Row{Word: "GDP", Synonyms: []string{"国民生产"}}
	b := &Row{Word: "国民生产", Synonyms: []string{"gdp", ""}}
	assert.Equal(t, a.TerminologyKey(), b.TerminologyKey())

	c := &Row{Word: "GDP", Synonyms: []string{"国民生产"}, SpecificDS: true, Datasources: []string{"销售库"}}
	assert.NotEqual(t, a.TerminologyKey(), c.TerminologyKey())

	// 未指定数据源时忽略名称
	d := &Row{Word: "GDP", Synonyms: []string{"国民生产"}, Datasources: []string{"销售库"}}
	assert.Equal(t, a.TerminologyKey(), d.TerminologyKey())

	assert.Equal(t, (&Row{Question: " q "}).TrainingKey(), (&Row{Question: "q"}).TrainingKey())
}

func TestIsEnabled(t *testing.T) {
	off := false
	assert.True(t, (&Row{}).IsEnabled())
	assert.False(t, (&Row{Enabled: &off}).IsEnabled())
}

func TestTerminologyForm(t *testing.T) {
	row := &Row{Word: "ARR", Description: "x", SpecificDS: true}
	errs := Check(nil, row, TerminologyForm)
	require.Len(t, errs, 1)

	row.ResolvedDatasources = []int64{7}
	assert.Empty(t, Check(nil, row, TerminologyForm))
	// 表单校验不解析数据源名称
	assert.Equal(t, []int64{7}, row.ResolvedDatasources)
}
