// Package dialect 数据源方言：展示名、标识符引号与 SQL 模板名
package dialect

import (
	"strings"
)

// Dialect 数据库方言
type Dialect struct {
	Type         string // 数据源类型标识
	Name         string // 展示名，作为提示词中的 engine
	Prefix       string // 标识符左引号
	Suffix       string // 标识符右引号
	TemplateName string // sql_examples 下的模板文件名
}

// Quote 用方言引号包裹标识符
func (d Dialect) Quote(ident string) string {
	return d.Prefix + ident + d.Suffix
}

var (
	Excel      = Dialect{"excel", "Excel/CSV", `"`, `"`, "PostgreSQL"}
	Redshift   = Dialect{"redshift", "AWS Redshift", `"`, `"`, "AWS_Redshift"}
	ClickHouse = Dialect{"ck", "ClickHouse", `"`, `"`, "ClickHouse"}
	DM         = Dialect{"dm", "达梦", `"`, `"`, "DM"}
	Doris      = Dialect{"doris", "Apache Doris", "`", "`", "Doris"}
	ES         = Dialect{"es", "Elasticsearch", `"`, `"`, "Elasticsearch"}
	Kingbase   = Dialect{"kingbase", "Kingbase", `"`, `"`, "Kingbase"}
	SQLServer  = Dialect{"sqlServer", "Microsoft SQL Server", "[", "]", "Microsoft_SQL_Server"}
	MySQL      = Dialect{"mysql", "MySQL", "`", "`", "MySQL"}
	Oracle     = Dialect{"oracle", "Oracle", `"`, `"`, "Oracle"}
	PostgreSQL = Dialect{"pg", "PostgreSQL", `"`, `"`, "PostgreSQL"}
	StarRocks  = Dialect{"starrocks", "StarRocks", "`", "`", "StarRocks"}
	SQLite     = Dialect{"sqlite", "SQLite", `"`, `"`, "SQLite"}
)

var all = []Dialect{Excel, Redshift, ClickHouse, DM, Doris, ES, Kingbase, SQLServer, MySQL, Oracle, PostgreSQL, StarRocks, SQLite}

// All 全部已知方言
func All() []Dialect {
	out := make([]Dialect, len(all))
	copy(out, all)
	return out
}

// Lookup 按类型查找方言（忽略大小写）
func Lookup(typ string) (Dialect, bool) {
	for _, d := range all {
		if strings.EqualFold(d.Type, typ) {
			return d, true
		}
	}
	return Dialect{}, false
}

// Get 按类型查找方言，未知类型回退为 PostgreSQL
func Get(typ string) Dialect {
	if d, ok := Lookup(typ); ok {
		return d
	}
	return PostgreSQL
}
