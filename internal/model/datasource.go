package model

import (
	"time"
)

const TableNameDatasource = "datasource"

// Datasource 问数目标数据源的连接信息
type Datasource struct {
	ID          int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OID         int64      `gorm:"column:oid;not null;default:1" json:"oid"`
	CreateTime  *time.Time `gorm:"column:create_time" json:"create_time"`
	Name        string     `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Description string     `gorm:"column:description;type:varchar(512)" json:"description"`
	Type        string     `gorm:"column:type;type:varchar(64);not null" json:"type"` // mysql, pg, sqlite ...
	Host        string     `gorm:"column:host;type:varchar(255)" json:"host"`
	Port        int        `gorm:"column:port" json:"port"`
	Username    string     `gorm:"column:username;type:varchar(128)" json:"username"`
	Password    string     `gorm:"column:password;type:varchar(255)" json:"-"`
	Database    string     `gorm:"column:database_name;type:varchar(255)" json:"database"`
	DBSchema    string     `gorm:"column:db_schema;type:varchar(128)" json:"db_schema"`
}

func (*Datasource) TableName() string {
	return TableNameDatasource
}

// All 需要自动迁移的表
func All() []any {
	return []any{
		&Chat{},
		&ChatRecord{},
		&ChatLog{},
		&Terminology{},
		&DataTraining{},
		&Datasource{},
	}
}
