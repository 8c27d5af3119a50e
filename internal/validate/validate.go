// Package validate 批量导入的逐行校验
//
// 每类数据一张固定的字段校验表，按字段顺序依次执行，收集全部错误后返回。
package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/duke-git/lancet/v2/strutil"
)

// Field 字段名
type Field string

const (
	FieldWord          Field = "word"
	FieldSynonyms      Field = "other_words"
	FieldDescription   Field = "description"
	FieldDatasources   Field = "datasource_names"
	FieldDatasourceIDs Field = "datasource_ids"
	FieldQuestion      Field = "question"
	FieldAnswer        Field = "answer"
	FieldDatasource    Field = "datasource_name"
	FieldApplication   Field = "advanced_application"
)

// order 字段校验顺序
var order = []Field{
	FieldWord, FieldSynonyms, FieldDescription, FieldDatasources, FieldDatasourceIDs,
	FieldQuestion, FieldAnswer, FieldDatasource, FieldApplication,
}

// Env 校验时依赖的外部数据
type Env struct {
	Datasources map[string]int64 // 数据源名称 -> ID
}

// Row 导入的一行，校验通过后解析出的 ID 回填到 Resolved 字段
type Row struct {
	Word        string   `json:"word,omitempty"`
	Synonyms    []string `json:"other_words,omitempty"`
	Description string   `json:"description,omitempty"`
	SpecificDS  bool     `json:"specific_ds,omitempty"`
	Datasources []string `json:"datasource_names,omitempty"`

	Question    string `json:"question,omitempty"`
	Answer      string `json:"answer,omitempty"`
	Datasource  string `json:"datasource_name,omitempty"`
	Application string `json:"advanced_application,omitempty"`

	Enabled *bool `json:"enabled,omitempty"`

	ResolvedDatasources []int64 `json:"-"`
	ResolvedDatasource  *int64  `json:"-"`
	ResolvedApplication *int64  `json:"-"`
}

// Func 校验一个字段
type Func func(env *Env, row *Row) error

// Terminology 术语导入校验表
var Terminology = map[Field]Func{
	FieldWord:        required("术语", func(r *Row) string { return r.Word }),
	FieldSynonyms:    noRepeatedWords,
	FieldDescription: required("术语描述", func(r *Row) string { return r.Description }),
	FieldDatasources: resolveDatasources,
}

// TerminologyForm 单条术语保存校验表，数据源已是 ID
var TerminologyForm = map[Field]Func{
	FieldWord:          Terminology[FieldWord],
	FieldSynonyms:      noRepeatedWords,
	FieldDescription:   Terminology[FieldDescription],
	FieldDatasourceIDs: requireDatasourceIDs,
}

// DataTraining SQL 示例导入校验表
var DataTraining = map[Field]Func{
	FieldQuestion:    required("问题", func(r *Row) string { return r.Question }),
	FieldAnswer:      required("SQL", func(r *Row) string { return r.Answer }),
	FieldDatasource:  resolveDatasource,
	FieldApplication: resolveApplication,
}

// Check 按字段顺序执行校验表，返回全部错误信息
func Check(env *Env, row *Row, table map[Field]Func) []string {
	if env == nil {
		env = &Env{}
	}
	var errs []string
	for _, f := range order {
		fn, ok := table[f]
		if !ok {
			continue
		}
		if err := fn(env, row); err != nil {
			errs = append(errs, err.Error())
		}
	}
	// 数据源与高级应用至少有一个
	if _, ok := table[FieldDatasource]; ok && len(errs) == 0 &&
		row.ResolvedDatasource == nil && row.ResolvedApplication == nil {
		errs = append(errs, "数据源和高级应用不能同时为空")
	}
	return errs
}

func required(name string, get func(*Row) string) Func {
	return func(_ *Env, row *Row) error {
		if strutil.IsBlank(get(row)) {
			return fmt.Errorf("%s不能为空", name)
		}
		return nil
	}
}

// noRepeatedWords 主词与同义词之间不能重复，忽略大小写和空白项
func noRepeatedWords(_ *Env, row *Row) error {
	words := []string{strings.ToLower(strings.TrimSpace(row.Word))}
	for _, w := range row.Synonyms {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if slice.Contain(words, w) {
			return fmt.Errorf("术语或同义词不能重复: %s", w)
		}
		words = append(words, w)
	}
	return nil
}

// resolveDatasources 指定数据源时名称必须全部存在且至少一个
func resolveDatasources(env *Env, row *Row) error {
	row.ResolvedDatasources = nil
	if !row.SpecificDS {
		return nil
	}
	var missing []string
	for _, name := range row.Datasources {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		id, ok := env.Datasources[name]
		if !ok {
			missing = append(missing, name)
			continue
		}
		row.ResolvedDatasources = append(row.ResolvedDatasources, id)
	}
	if len(missing) > 0 {
		return fmt.Errorf("数据源不存在: %s", strings.Join(missing, ", "))
	}
	if len(row.ResolvedDatasources) == 0 {
		return fmt.Errorf("指定数据源时数据源不能为空")
	}
	row.ResolvedDatasources = slice.Unique(row.ResolvedDatasources)
	return nil
}

func requireDatasourceIDs(_ *Env, row *Row) error {
	if row.SpecificDS && len(row.ResolvedDatasources) == 0 {
		return fmt.Errorf("指定数据源时数据源不能为空")
	}
	return nil
}

func resolveDatasource(env *Env, row *Row) error {
	row.ResolvedDatasource = nil
	name := strings.TrimSpace(row.Datasource)
	if name == "" {
		return nil
	}
	id, ok := env.Datasources[name]
	if !ok {
		return fmt.Errorf("数据源不存在: %s", name)
	}
	row.ResolvedDatasource = &id
	return nil
}

func resolveApplication(_ *Env, row *Row) error {
	row.ResolvedApplication = nil
	s := strings.TrimSpace(row.Application)
	if s == "" {
		return nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return fmt.Errorf("高级应用ID无效: %s", s)
	}
	row.ResolvedApplication = &id
	return nil
}

// TerminologyKey 去重键：全部词（忽略大小写与顺序）+ 数据源名称 + 是否指定数据源
func (r *Row) TerminologyKey() string {
	words := []string{strings.ToLower(strings.TrimSpace(r.Word))}
	for _, w := range r.Synonyms {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			words = append(words, w)
		}
	}
	sort.Strings(words)

	var names []string
	if r.SpecificDS {
		for _, n := range r.Datasources {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				names = append(names, n)
			}
		}
		sort.Strings(names)
	}
	return strings.Join(words, ",") + "|" + strings.Join(names, ",") + "|" + strconv.FormatBool(r.SpecificDS)
}

// TrainingKey 去重键：问题 + 数据源 + 高级应用
func (r *Row) TrainingKey() string {
	return strings.TrimSpace(r.Question) + "|" + strings.TrimSpace(r.Datasource) + "|" + strings.TrimSpace(r.Application)
}

// CleanSynonyms 去掉空白同义词
func (r *Row) CleanSynonyms() []string {
	out := make([]string, 0, len(r.Synonyms))
	for _, w := range r.Synonyms {
		if w = strings.TrimSpace(w); w != "" {
			out = append(out, w)
		}
	}
	return out
}

// IsEnabled 未填写时默认启用
func (r *Row) IsEnabled() bool {
	return r.Enabled == nil || *r.Enabled
}
