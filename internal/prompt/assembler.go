// Package prompt 按阶段组装系统与用户提示词
package prompt

import (
	"context"
	"fmt"
	"strconv"

	"github.com/superfm831010/SQLBothp/internal/dialect"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Stage 需要调用大模型的阶段
type Stage string

const (
	StageSQL      Stage = "sql"
	StageChart    Stage = "chart"
	StageAnalysis Stage = "analysis"
	StagePredict  Stage = "predict"
	StageGuess    Stage = "guess"
)

// DefaultArticlesNumber 默认推荐问题个数
const DefaultArticlesNumber = 4

// Input 组装提示词所需的全部变量
type Input struct {
	Dialect          dialect.Dialect
	Schema           string
	Question         string
	Lang             string
	Terminologies    string // 术语 XML
	DataTraining     string // SQL 示例 XML
	CustomPrompt     string
	Rule             string
	ErrorMsg         string // 上一次失败的错误信息
	Regenerate       bool
	EnableQueryLimit bool
	CurrentTime      string
	ChangeTitle      bool
	SQL              string
	ChartType        string
	Fields           string
	Data             string
	OldQuestions     string
	ArticlesNumber   int
}

// Assembler 提示词组装器，只读取模板，不访问网络与数据库
type Assembler struct {
	store *Store
}

// NewAssembler 创建提示词组装器
func NewAssembler(store *Store) *Assembler {
	return &Assembler{store: store}
}

// Assemble 返回阶段的系统提示词与用户提示词
func (a *Assembler) Assemble(ctx context.Context, stage Stage, in *Input) (string, string, error) {
	set := a.store.Current()
	if set == nil {
		return "", "", fmt.Errorf("提示词模板未加载")
	}

	switch stage {
	case StageSQL:
		return a.sql(ctx, set, in)
	case StageChart:
		return render(ctx, set.Base.Chart, map[string]any{
			"sql":        in.SQL,
			"question":   in.Question,
			"lang":       in.Lang,
			"rule":       in.Rule,
			"chart_type": in.ChartType,
		})
	case StageAnalysis:
		return render(ctx, set.Base.Analysis, map[string]any{
			"lang":          in.Lang,
			"terminologies": in.Terminologies,
			"custom_prompt": in.CustomPrompt,
			"fields":        in.Fields,
			"data":          in.Data,
		})
	case StagePredict:
		return render(ctx, set.Base.Predict, map[string]any{
			"lang":          in.Lang,
			"custom_prompt": in.CustomPrompt,
			"fields":        in.Fields,
			"data":          in.Data,
		})
	case StageGuess:
		n := in.ArticlesNumber
		if n <= 0 {
			n = DefaultArticlesNumber
		}
		oldQuestions := in.OldQuestions
		if oldQuestions == "" {
			oldQuestions = "[]"
		}
		return render(ctx, set.Base.Guess, map[string]any{
			"lang":            in.Lang,
			"articles_number": n,
			"question":        in.Question,
			"schema":          in.Schema,
			"old_questions":   oldQuestions,
		})
	default:
		return "", "", fmt.Errorf("未知的阶段: %s", stage)
	}
}

func (a *Assembler) sql(ctx context.Context, set *TemplateSet, in *Input) (string, string, error) {
	base := set.Base.SQL
	rules := set.Rules(in.Dialect)

	// 规则片段本身也是模板，先用公共变量渲染
	common := map[string]any{
		"engine":                in.Dialect.Name,
		"lang":                  in.Lang,
		"multi_table_condition": base.MultiTableCondition,
	}
	pick := func(plain, withLimit string) string {
		if in.EnableQueryLimit {
			return withLimit
		}
		return plain
	}
	queryLimit := pick(base.NoQueryLimit, base.QueryLimit)

	parts := map[string]string{
		"process_check":      rules.ProcessCheck,
		"quot_rule":          rules.QuotRule,
		"query_limit":        queryLimit,
		"limit_rule":         rules.LimitRule,
		"other_rule":         rules.OtherRule,
		"basic_sql_examples": rules.BasicExample,
		"example_engine":     rules.ExampleEngine,
		"example_answer_1":   pick(rules.ExampleAnswer1, rules.ExampleAnswer1WithLimit),
		"example_answer_2":   pick(rules.ExampleAnswer2, rules.ExampleAnswer2WithLimit),
		"example_answer_3":   pick(rules.ExampleAnswer3, rules.ExampleAnswer3WithLimit),
	}
	rendered := make(map[string]string, len(parts))
	for key, text := range parts {
		out, err := formatString(ctx, text, common)
		if err != nil {
			return "", "", fmt.Errorf("渲染 %s 失败: %w", key, err)
		}
		rendered[key] = out
	}

	question := in.Question
	if in.Regenerate {
		question = base.RegenerateHint + question
	}

	vars := map[string]any{
		"engine":             in.Dialect.Name,
		"schema":             in.Schema,
		"question":           question,
		"lang":               in.Lang,
		"terminologies":      in.Terminologies,
		"data_training":      in.DataTraining,
		"custom_prompt":      in.CustomPrompt,
		"process_check":      rendered["process_check"],
		"base_sql_rules":     rendered["quot_rule"] + rendered["query_limit"] + rendered["limit_rule"] + rendered["other_rule"],
		"basic_sql_examples": rendered["basic_sql_examples"],
		"example_engine":     rendered["example_engine"],
		"example_answer_1":   rendered["example_answer_1"],
		"example_answer_2":   rendered["example_answer_2"],
		"example_answer_3":   rendered["example_answer_3"],
		"rule":               in.Rule,
		"current_time":       in.CurrentTime,
		"error_msg":          in.ErrorMsg,
		"change_title":       strconv.FormatBool(in.ChangeTitle),
	}
	return render(ctx, base.Pair, vars)
}

// render 使用 eino FString 模板渲染一对提示词
func render(ctx context.Context, pair Pair, vars map[string]any) (string, string, error) {
	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(pair.System),
		schema.UserMessage(pair.User),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return "", "", err
	}
	if len(msgs) != 2 {
		return "", "", fmt.Errorf("模板渲染结果异常: %d 条消息", len(msgs))
	}
	return msgs[0].Content, msgs[1].Content, nil
}

func formatString(ctx context.Context, text string, vars map[string]any) (string, error) {
	if text == "" {
		return "", nil
	}
	msgs, err := prompt.FromMessages(schema.FString, schema.UserMessage(text)).Format(ctx, vars)
	if err != nil {
		return "", err
	}
	return msgs[0].Content, nil
}
