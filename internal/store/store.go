package store

import (
	"errors"

	"github.com/superfm831010/SQLBothp/internal/types"

	"gorm.io/gorm"
)

// PageQuery 分页参数
type PageQuery struct {
	Page     int
	PageSize int
	Keyword  string
}

func (p PageQuery) offset() int {
	if p.Page < 1 {
		return 0
	}
	return (p.Page - 1) * p.limit()
}

func (p PageQuery) limit() int {
	if p.PageSize <= 0 {
		return 10
	}
	return p.PageSize
}

// notFound 将 gorm 的 ErrRecordNotFound 转为 ErrNotFound
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.NewAppErrorWithDetails(types.ErrCodeNotFound, "记录不存在", what)
	}
	return err
}
