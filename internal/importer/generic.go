package importer

// genericFormat is the fallback: a flat table whose header resolves at least a
// symbol-like column and a quantity column.
type genericFormat struct {
	scanRows int
}

func (genericFormat) Kind() Kind { return KindGeneric }

func (g genericFormat) Detect(sample []record) bool {
	_, _, ok := findHeader(sample)
	return ok
}

func (g genericFormat) Extract(rows []record, summary *Summary) (*Result, error) {
	limit := rows
	if len(limit) > g.scanRows+1 {
		limit = limit[:g.scanRows+1]
	}
	idx, cols, ok := findHeader(limit)
	if !ok {
		return nil, ErrUnrecognizedFormat
	}

	res := &Result{}
	for _, r := range rows[idx+1:] {
		if r.blank() {
			continue
		}
		p, err := buildPosition(r, cols, "")
		if err != nil {
			summary.reject(&RowError{Line: r.line, Reason: err.Error()})
			continue
		}
		summary.accept()
		res.Positions = append(res.Positions, p)
	}

	if len(res.Positions) == 0 {
		return res, noUsableRows(summary)
	}
	return res, nil
}

// findHeader returns the first row that resolves to a positions-capable header.
func findHeader(rows []record) (int, columns, bool) {
	for i, r := range rows {
		if r.nonEmpty() < 2 {
			continue
		}
		cols := resolveColumns(r.cells)
		if cols.positionsCapable() {
			return i, cols, true
		}
	}
	return 0, nil, false
}
