package service

import "backoffice-service/internal/store"

// Paging clamps page and limit query parameters
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

// DefaultPaging matches the page size the API has always used
var DefaultPaging = Paging{DefaultLimit: 10, MaxLimit: 100}

// Normalize turns 1-based page and limit values into a store filter. Zero or
// negative values fall back to the first page and the default limit.
func (p Paging) Normalize(page, limit int, search string) (int, int, store.ListFilter) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return page, limit, store.ListFilter{Limit: limit, Offset: (page - 1) * limit, Search: search}
}

func totalPages(total, limit int) int {
	if limit <= 0 || total == 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// PageInfo is the pagination envelope shared by list responses
type PageInfo struct {
	Total      int `json:"total"`
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"totalPages"`
}

func newPageInfo(total, page, limit int) PageInfo {
	return PageInfo{Total: total, Page: page, Limit: limit, TotalPages: totalPages(total, limit)}
}
