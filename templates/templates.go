// Package templates 内置提示词模板
package templates

import (
	"embed"
)

// FS 内置模板，未配置 templates_dir 时使用
//
//go:embed template.yaml sql_examples/*.yaml
var FS embed.FS
