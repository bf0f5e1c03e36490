// Package pagination reads page/size query parameters and pages GORM queries.
package pagination

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bookbridge/core/internal/pkg/response"
)

const (
	DefaultPage = 1
	DefaultSize = 20
	MaxSize     = 100
)

type Query struct {
	Page int
	Size int
}

// Normalize clamps out-of-range values to the defaults.
func (q Query) Normalize() Query {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.Size < 1 || q.Size > MaxSize {
		q.Size = DefaultSize
	}
	return q
}

func (q Query) Offset() int { return (q.Page - 1) * q.Size }

// FromContext parses ?page=&size=; malformed values fall back to defaults.
func FromContext(c *gin.Context) Query {
	return Query{
		Page: atoiOr(c.Query("page"), DefaultPage),
		Size: atoiOr(c.Query("size"), DefaultSize),
	}.Normalize()
}

// Paginate counts db, then loads one page of it into dest.
func Paginate[T any](db *gorm.DB, q Query, dest *[]T) (response.Pagination, error) {
	q = q.Normalize()
	var total int64
	if err := db.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return response.Pagination{}, err
	}
	if err := db.Session(&gorm.Session{}).Offset(q.Offset()).Limit(q.Size).Find(dest).Error; err != nil {
		return response.Pagination{}, err
	}
	return response.NewPagination(total, q.Page, q.Size), nil
}

func atoiOr(s string, def int) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return v
}
