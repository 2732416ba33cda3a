package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/darasa-app/darasa/core"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type Pagination struct {
	Page     int
	PageSize int
}

func (p *Pagination) Bind(ctx echo.Context) {
	p.Page, _ = strconv.Atoi(ctx.QueryParam("page"))
	if p.Page < 1 {
		p.Page = 1
	}
	p.PageSize, _ = strconv.Atoi(ctx.QueryParam("page_size"))
	if p.PageSize < 1 {
		p.PageSize = defaultPageSize
	} else if p.PageSize > maxPageSize {
		p.PageSize = maxPageSize
	}
}

// Slice returns the [start, end) window into a result set of n items.
func (p Pagination) Slice(n int) (int, int) {
	start := (p.Page - 1) * p.PageSize
	if start > n {
		start = n
	}
	end := start + p.PageSize
	if end > n {
		end = n
	}
	return start, end
}

// PaginatedResponse is the standard list envelope.
type PaginatedResponse struct {
	Count    int         `json:"count"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Results  interface{} `json:"results"`
}
