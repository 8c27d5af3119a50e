package prompt

import (
	"fmt"
	"io/fs"
	"os"
	"path"
	"sync/atomic"

	"github.com/superfm831010/SQLBothp/common/logger"
	"github.com/superfm831010/SQLBothp/internal/dialect"
	"github.com/superfm831010/SQLBothp/templates"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	baseFile       = "template.yaml"
	sqlExamplesDir = "sql_examples"
)

// Pair 一个阶段的系统与用户提示词模板
type Pair struct {
	System string `yaml:"system"`
	User   string `yaml:"user"`
}

// SQLRules 可被方言覆盖的 SQL 规则
type SQLRules struct {
	ProcessCheck            string `yaml:"process_check"`
	QuotRule                string `yaml:"quot_rule"`
	LimitRule               string `yaml:"limit_rule"`
	OtherRule               string `yaml:"other_rule"`
	BasicExample            string `yaml:"basic_example"`
	ExampleEngine           string `yaml:"example_engine"`
	ExampleAnswer1          string `yaml:"example_answer_1"`
	ExampleAnswer1WithLimit string `yaml:"example_answer_1_with_limit"`
	ExampleAnswer2          string `yaml:"example_answer_2"`
	ExampleAnswer2WithLimit string `yaml:"example_answer_2_with_limit"`
	ExampleAnswer3          string `yaml:"example_answer_3"`
	ExampleAnswer3WithLimit string `yaml:"example_answer_3_with_limit"`
}

// Merge 以 base 补齐未覆盖的字段
func (r SQLRules) Merge(base SQLRules) SQLRules {
	pick := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}
	return SQLRules{
		ProcessCheck:            pick(r.ProcessCheck, base.ProcessCheck),
		QuotRule:                pick(r.QuotRule, base.QuotRule),
		LimitRule:               pick(r.LimitRule, base.LimitRule),
		OtherRule:               pick(r.OtherRule, base.OtherRule),
		BasicExample:            pick(r.BasicExample, base.BasicExample),
		ExampleEngine:           pick(r.ExampleEngine, base.ExampleEngine),
		ExampleAnswer1:          pick(r.ExampleAnswer1, base.ExampleAnswer1),
		ExampleAnswer1WithLimit: pick(r.ExampleAnswer1WithLimit, base.ExampleAnswer1WithLimit),
		ExampleAnswer2:          pick(r.ExampleAnswer2, base.ExampleAnswer2),
		ExampleAnswer2WithLimit: pick(r.ExampleAnswer2WithLimit, base.ExampleAnswer2WithLimit),
		ExampleAnswer3:          pick(r.ExampleAnswer3, base.ExampleAnswer3),
		ExampleAnswer3WithLimit: pick(r.ExampleAnswer3WithLimit, base.ExampleAnswer3WithLimit),
	}
}

// SQLTemplate SQL 阶段基础模板
type SQLTemplate struct {
	Pair                `yaml:",inline"`
	SQLRules            `yaml:",inline"`
	QueryLimit          string `yaml:"query_limit"`
	NoQueryLimit        string `yaml:"no_query_limit"`
	MultiTableCondition string `yaml:"multi_table_condition"`
	RegenerateHint      string `yaml:"regenerate_hint"`
}

// BaseTemplate template.yaml
type BaseTemplate struct {
	SQL      SQLTemplate `yaml:"sql"`
	Chart    Pair        `yaml:"chart"`
	Analysis Pair        `yaml:"analysis"`
	Predict  Pair        `yaml:"predict"`
	Guess    Pair        `yaml:"guess"`
}

type baseFileDoc struct {
	Template BaseTemplate `yaml:"template"`
}

type sqlFileDoc struct {
	Template SQLRules `yaml:"template"`
}

// TemplateSet 一次完整加载的模板集合，加载后不再修改
type TemplateSet struct {
	Base     BaseTemplate
	Dialects map[string]SQLRules // key 为方言模板名
}

// Rules 方言的 SQL 规则，缺失的方言回退到 PostgreSQL，再回退到基础模板
func (s *TemplateSet) Rules(d dialect.Dialect) SQLRules {
	rules, ok := s.Dialects[d.TemplateName]
	if !ok {
		rules = s.Dialects[dialect.PostgreSQL.TemplateName]
	}
	return rules.Merge(s.Base.SQL.SQLRules)
}

// LoadFS 从文件系统加载模板
func LoadFS(fsys fs.FS) (*TemplateSet, error) {
	data, err := fs.ReadFile(fsys, baseFile)
	if err != nil {
		return nil, fmt.Errorf("读取基础模板失败: %w", err)
	}
	var doc baseFileDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("解析基础模板失败: %w", err)
	}
	if doc.Template.SQL.System == "" || doc.Template.SQL.User == "" {
		return nil, fmt.Errorf("基础模板缺少 sql.system 或 sql.user")
	}

	set := &TemplateSet{Base: doc.Template, Dialects: make(map[string]SQLRules)}
	for _, d := range dialect.All() {
		if _, ok := set.Dialects[d.TemplateName]; ok {
			continue
		}
		data, err := fs.ReadFile(fsys, path.Join(sqlExamplesDir, d.TemplateName+".yaml"))
		if err != nil {
			// 没有专用模板的方言使用基础规则
			continue
		}
		var sqlDoc sqlFileDoc
		if err := yaml.Unmarshal(data, &sqlDoc); err != nil {
			return nil, fmt.Errorf("解析 %s 模板失败: %w", d.TemplateName, err)
		}
		set.Dialects[d.TemplateName] = sqlDoc.Template
	}
	return set, nil
}

// Store 模板缓存，启动时加载，Reload 时整体替换
type Store struct {
	dir     string
	current atomic.Pointer[TemplateSet]
}

// NewStore 创建模板缓存，dir 为空时使用内置模板
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) fsys() fs.FS {
	if s.dir == "" {
		return templates.FS
	}
	return os.DirFS(s.dir)
}

// Load 加载模板，失败时保留旧模板
func (s *Store) Load() error {
	set, err := LoadFS(s.fsys())
	if err != nil {
		return err
	}
	s.current.Store(set)
	logger.Info("提示词模板已加载", zap.String("dir", s.dir), zap.Int("dialects", len(set.Dialects)))
	return nil
}

// Reload 重新加载模板
func (s *Store) Reload() error {
	if err := s.Load(); err != nil {
		logger.Error("提示词模板重新加载失败", zap.Error(err))
		return err
	}
	return nil
}

// Current 当前模板集合
func (s *Store) Current() *TemplateSet {
	return s.current.Load()
}

// Set 直接替换模板集合
func (s *Store) Set(set *TemplateSet) {
	s.current.Store(set)
}
