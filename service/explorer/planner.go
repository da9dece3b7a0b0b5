package explorer

// PlanSlots returns the candidate slots for one page of the block list:
// head-(page-1)*limit-i for i in [0, limit), strictly descending. The plan is
// cut short rather than wrapping below slot 0, and is empty when the page
// starts past genesis. page and limit must be at least 1.
func PlanSlots(head uint64, page, limit int) []uint64 {
	if page < 1 || limit < 1 {
		return []uint64{}
	}

	l := uint64(limit)
	skipPages := uint64(page - 1)
	if skipPages > head/l {
		return []uint64{}
	}

	start := head - skipPages*l
	n := l
	if start < n-1 {
		n = start + 1
	}

	slots := make([]uint64, 0, n)
	for i := uint64(0); i < n; i++ {
		slots = append(slots, start-i)
	}
	return slots
}

// Paging holds the default and maximum page sizes.
type Paging struct {
	DefaultLimit int
	MaxLimit     int
}

// Normalize applies defaults to missing values and clamps limit to MaxLimit.
// Zero means "not supplied". The returned values are echoed in the response.
func (p Paging) Normalize(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = p.DefaultLimit
	}
	if p.MaxLimit > 0 && limit > p.MaxLimit {
		limit = p.MaxLimit
	}
	return page, limit
}
