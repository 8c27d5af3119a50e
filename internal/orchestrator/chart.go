package orchestrator

import (
	"github.com/superfm831010/SQLBothp/common/utils"
)

type chartColumn struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type tableChart struct {
	Type    string        `json:"type"`
	Title   string        `json:"title"`
	Columns []chartColumn `json:"columns"`
}

// DefaultChart 图表生成失败时使用的表格配置
func DefaultChart(title string, fields []string) string {
	chart := tableChart{Type: "table", Title: title, Columns: make([]chartColumn, 0, len(fields))}
	for _, f := range fields {
		chart.Columns = append(chart.Columns, chartColumn{Name: f, Value: f})
	}
	return utils.ToJSON(chart)
}
