package model

import (
	"time"
)

const (
	TableNameTerminology  = "terminology"
	TableNameDataTraining = "data_training"
)

// Terminology 术语，pid 为空的是主词并携带描述，同义词通过 pid 指向主词
type Terminology struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	PID           *int64     `gorm:"column:pid;index:idx_term_pid" json:"pid"`
	OID           int64      `gorm:"column:oid;not null;default:1;index:idx_term_oid" json:"oid"`
	CreateTime    *time.Time `gorm:"column:create_time" json:"create_time"`
	Word          string     `gorm:"column:word;type:varchar(255);not null" json:"word"`
	Description   string     `gorm:"column:description;type:text" json:"description"`
	Embedding     []float32  `gorm:"column:embedding;type:text;serializer:json" json:"-"`
	Enabled       bool       `gorm:"column:enabled;not null" json:"enabled"`
	SpecificDS    bool       `gorm:"column:specific_ds;default:false" json:"specific_ds"`
	DatasourceIDs []int64    `gorm:"column:datasource_ids;type:text;serializer:json" json:"datasource_ids"`
}

func (*Terminology) TableName() string {
	return TableNameTerminology
}

// RootID 同义词簇的主词ID
func (t *Terminology) RootID() int64 {
	if t.PID != nil {
		return *t.PID
	}
	return t.ID
}

// InScope 是否对指定数据源可见，datasource 为空时只匹配全局术语
func (t *Terminology) InScope(datasource *int64) bool {
	if !t.SpecificDS {
		return true
	}
	if datasource == nil {
		return false
	}
	for _, id := range t.DatasourceIDs {
		if id == *datasource {
			return true
		}
	}
	return false
}

// DataTraining SQL 示例，绑定到一个数据源或一个高级应用
type DataTraining struct {
	ID                  int64      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	OID                 int64      `gorm:"column:oid;not null;default:1;index:idx_dt_oid" json:"oid"`
	CreateTime          *time.Time `gorm:"column:create_time" json:"create_time"`
	Question            string     `gorm:"column:question;type:varchar(255);not null" json:"question"`
	Description         string     `gorm:"column:description;type:text" json:"description"`
	Embedding           []float32  `gorm:"column:embedding;type:text;serializer:json" json:"-"`
	Enabled             bool       `gorm:"column:enabled;not null" json:"enabled"`
	Datasource          *int64     `gorm:"column:datasource;index:idx_dt_datasource" json:"datasource"`
	AdvancedApplication *int64     `gorm:"column:advanced_application" json:"advanced_application"`
}

func (*DataTraining) TableName() string {
	return TableNameDataTraining
}

// InScope 是否属于指定数据源或高级应用
func (d *DataTraining) InScope(datasource, application *int64) bool {
	if datasource != nil && d.Datasource != nil && *d.Datasource == *datasource {
		return true
	}
	if application != nil && d.AdvancedApplication != nil && *d.AdvancedApplication == *application {
		return true
	}
	return false
}
