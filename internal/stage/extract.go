package stage

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/superfm831010/SQLBothp/common/utils"
)

var (
	sqlFence  = regexp.MustCompile("(?s)```(?i:sql)\\s*\\n?(.*?)```")
	jsonFence = regexp.MustCompile("(?s)```(?i:json)\\s*\\n?(.*?)```")
)

// SQLAnswer SQL 阶段的结构化回答
type SQLAnswer struct {
	Success   bool     `json:"success"`
	SQL       string   `json:"sql"`
	Tables    []string `json:"tables"`
	ChartType string   `json:"chart-type"`
	Brief     string   `json:"brief"`
	Message   string   `json:"message"`
}

// ParseSQLAnswer 优先取 ```sql 代码块，否则解析 JSON 回答
func ParseSQLAnswer(answer string) (*SQLAnswer, error) {
	if m := sqlFence.FindStringSubmatch(answer); m != nil {
		if sql := strings.TrimSpace(m[1]); sql != "" {
			return &SQLAnswer{Success: true, SQL: sql}, nil
		}
	}

	raw, err := ExtractJSON(answer)
	if err != nil {
		return nil, fmt.Errorf("未在回答中找到 SQL")
	}
	var parsed SQLAnswer
	if err := utils.UnmarshalString(raw, &parsed); err != nil {
		return nil, fmt.Errorf("SQL 回答格式错误: %w", err)
	}
	parsed.SQL = strings.TrimSpace(parsed.SQL)
	if !parsed.Success && parsed.SQL == "" {
		if parsed.Message != "" {
			return nil, fmt.Errorf("%s", parsed.Message)
		}
		return nil, fmt.Errorf("模型未能生成 SQL")
	}
	if parsed.SQL == "" {
		return nil, fmt.Errorf("生成的 SQL 为空")
	}
	return &parsed, nil
}

// ExtractSQL 提取 SQL
func ExtractSQL(answer string) (string, error) {
	parsed, err := ParseSQLAnswer(answer)
	if err != nil {
		return "", err
	}
	return parsed.SQL, nil
}

// ExtractJSON 提取 ```json 代码块或最外层的 {...} / [...]
func ExtractJSON(answer string) (string, error) {
	if m := jsonFence.FindStringSubmatch(answer); m != nil {
		if raw := strings.TrimSpace(m[1]); utils.ValidString(raw) {
			return raw, nil
		}
	}
	pairs := [][2]byte{{'{', '}'}, {'[', ']'}}
	if a, o := strings.IndexByte(answer, '['), strings.IndexByte(answer, '{'); a >= 0 && (o < 0 || a < o) {
		pairs[0], pairs[1] = pairs[1], pairs[0]
	}
	for _, pair := range pairs {
		start := strings.IndexByte(answer, pair[0])
		end := strings.LastIndexByte(answer, pair[1])
		if start < 0 || end <= start {
			continue
		}
		if raw := answer[start : end+1]; utils.ValidString(raw) {
			return raw, nil
		}
	}
	return "", fmt.Errorf("未在回答中找到 JSON")
}

// ExtractJSONArray 提取 JSON 数组
func ExtractJSONArray(answer string) (string, error) {
	if m := jsonFence.FindStringSubmatch(answer); m != nil {
		if raw := strings.TrimSpace(m[1]); strings.HasPrefix(raw, "[") && utils.ValidString(raw) {
			return raw, nil
		}
	}
	start := strings.IndexByte(answer, '[')
	end := strings.LastIndexByte(answer, ']')
	if start >= 0 && end > start {
		if raw := answer[start : end+1]; utils.ValidString(raw) {
			return raw, nil
		}
	}
	return "", fmt.Errorf("未在回答中找到 JSON 数组")
}
