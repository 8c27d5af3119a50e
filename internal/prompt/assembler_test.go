package prompt

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/superfm831010/SQLBothp/internal/dialect"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmbeddedAssembler(t *testing.T) *Assembler {
	t.Helper()
	store := NewStore("")
	require.NoError(t, store.Load())
	return NewAssembler(store)
}

func TestAssemble_SQLDialectOverrides(t *testing.T) {
	a := newEmbeddedAssembler(t)
	ctx := context.Background()

	in := &Input{
		Dialect:          dialect.SQLServer,
		Schema:           "# Table: orders",
		Question:         "各地区销售额",
		Lang:             "简体中文",
		Terminologies:    "<terminologies></terminologies>",
		EnableQueryLimit: true,
	}
	system, user, err := a.Assemble(ctx, StageSQL, in)
	require.NoError(t, err)
	assert.Contains(t, system, "Microsoft SQL Server")
	assert.Contains(t, system, "SELECT TOP")
	assert.Contains(t, system, "# Table: orders")
	assert.Contains(t, system, `{"success":true`)
	assert.NotContains(t, system, "{{")
	// 未覆盖的字段来自基础模板
	assert.Contains(t, system, "1000 行")
	assert.Contains(t, user, "各地区销售额")

	in.EnableQueryLimit = false
	system, _, err = a.Assemble(ctx, StageSQL, in)
	require.NoError(t, err)
	assert.NotContains(t, system, "SELECT TOP 1000")
	assert.Contains(t, system, "不要为 SQL 添加行数限制")
}

func TestAssemble_RegenerateHint(t *testing.T) {
	a := newEmbeddedAssembler(t)
	hint := a.store.Current().Base.SQL.RegenerateHint
	require.NotEmpty(t, hint)

	_, user, err := a.Assemble(context.Background(), StageSQL, &Input{
		Dialect:    dialect.Get("nope"),
		Question:   "月活用户",
		Regenerate: true,
		ErrorMsg:   "column not found",
	})
	require.NoError(t, err)
	assert.Contains(t, user, hint+"月活用户")
	assert.Contains(t, user, "column not found")
}

func TestAssemble_OtherStages(t *testing.T) {
	a := newEmbeddedAssembler(t)
	ctx := context.Background()

	system, user, err := a.Assemble(ctx, StageGuess, &Input{Lang: "English", Question: "sales", Schema: "s"})
	require.NoError(t, err)
	assert.Contains(t, system, "4 个问题")
	assert.Contains(t, user, "[]")

	system, _, err = a.Assemble(ctx, StageChart, &Input{Lang: "English", SQL: "SELECT 1"})
	require.NoError(t, err)
	assert.Contains(t, system, `{"type":"column"`)

	_, user, err = a.Assemble(ctx, StagePredict, &Input{Fields: `["month","amount"]`, Data: `[{"month":"2024-01"}]`})
	require.NoError(t, err)
	assert.Contains(t, user, `{"month":"2024-01"}`)

	_, _, err = a.Assemble(ctx, Stage("unknown"), &Input{})
	assert.Error(t, err)
}

func TestStore_ReloadSwapsAtomically(t *testing.T) {
	fsys := fstest.MapFS{
		"template.yaml": {Data: []byte("template:\n  sql:\n    system: \"v1 {engine}\"\n    user: \"{question}\"\n")},
	}
	set, err := LoadFS(fsys)
	require.NoError(t, err)

	store := NewStore("")
	store.Set(set)
	a := NewAssembler(store)

	system, _, err := a.Assemble(context.Background(), StageSQL, &Input{Dialect: dialect.MySQL})
	require.NoError(t, err)
	assert.Equal(t, "v1 MySQL", system)

	// 解析失败时保留旧模板
	_, err = LoadFS(fstest.MapFS{"template.yaml": {Data: []byte("template:\n  sql: {}\n")}})
	assert.Error(t, err)
	assert.Same(t, set, store.Current())
}

func TestTemplateSet_RulesFallback(t *testing.T) {
	set := &TemplateSet{
		Base: BaseTemplate{SQL: SQLTemplate{SQLRules: SQLRules{QuotRule: "base-quot", LimitRule: "base-limit"}}},
		Dialects: map[string]SQLRules{
			"PostgreSQL": {LimitRule: "pg-limit"},
			"MySQL":      {QuotRule: "mysql-quot"},
		},
	}
	rules := set.Rules(dialect.MySQL)
	assert.Equal(t, "mysql-quot", rules.QuotRule)
	assert.Equal(t, "base-limit", rules.LimitRule)

	rules = set.Rules(dialect.Oracle)
	assert.Equal(t, "base-quot", rules.QuotRule)
	assert.Equal(t, "pg-limit", rules.LimitRule)
}
