package shared

// Pagination describes a limit/offset window over a result set.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"hasMore"`
}

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

// NewPagination computes pagination metadata.
func NewPagination(total, limit, offset int) Pagination {
	if offset < 0 {
		offset = 0
	}
	return Pagination{Total: total, Limit: limit, Offset: offset, HasMore: offset+limit < total}
}
