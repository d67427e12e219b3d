package fixer

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"labelqc/internal/quality"
	"labelqc/internal/visualinfo"
)

// Header texts of translation tables.
const (
	sourceHeader = "원문"
	targetMarker = "번역"
)

var targetHeaders = []string{"번역문", "번역"}

// Table layouts recognised by the tables pass.
const (
	LayoutColumns = "columns" // headers share a row, content runs down columns
	LayoutRows    = "rows"    // headers share a column, content runs along rows
)

var (
	errNoHeaders     = errors.New("needs exactly one 원문 header and one 번역문 header")
	errSpannedCell   = errors.New("spanned cells are not supported")
	errHeaderPlacing = errors.New("headers share neither a row nor a column")
	errStrayCell     = errors.New("cell outside the source and target lines")
)

// normalizeTables canonicalises translation tables so that row 0 holds the
// 원문 and 번역문 headers and each following row pairs the k-th source cell
// with the k-th target cell. Only row, col and cell order change.
func (f *Fixer) normalizeTables() []quality.FixResult {
	var results []quality.FixResult
	for _, e := range f.doc.Elements {
		if e.Err() != nil || !e.IsTable() || !isTranslationTable(e) {
			continue
		}

		cells := e.Cells()
		description := fmt.Sprintf("canonicalise translation table %s", e.Ref())
		metadata := map[string]any{MetaElementID: e.Ref()}

		canonical, layout, err := canonicalTable(cells)
		if err != nil {
			results = append(results, quality.NotFixed(description, err.Error(), cellLayout(cells), metadata))
			continue
		}
		if sameLayout(cells, canonical) {
			continue
		}
		metadata[MetaLayout] = layout
		if err := e.SetCells(canonical); err != nil {
			results = append(results, quality.NotFixed(description, err.Error(), cellLayout(cells), metadata))
			continue
		}
		results = append(results, quality.Fixed(description, cellLayout(cells), cellLayout(canonical), metadata))
	}
	return results
}

// isTranslationTable reports whether the table's own text names both the
// source and the translation.
func isTranslationTable(e *visualinfo.Element) bool {
	text := e.RawText()
	return strings.Contains(text, sourceHeader) && strings.Contains(text, targetMarker)
}

// canonicalTable computes the canonical cell sequence.
//
// The source header is the single cell reading 원문 and the target header
// the single cell reading 번역문 (or 번역). When they share a row, content
// cells are those sharing a header's column and are ordered by row; when
// they share a column, content shares a header's row and is ordered by
// column. Every cell must sit on one of the two lines and span one slot.
func canonicalTable(cells []visualinfo.Cell) ([]visualinfo.Cell, string, error) {
	src, tgt := -1, -1
	for i, c := range cells {
		text := strings.TrimSpace(c.Text)
		switch {
		case text == sourceHeader:
			if src >= 0 {
				return nil, "", errNoHeaders
			}
			src = i
		case slices.Contains(targetHeaders, text):
			if tgt >= 0 {
				return nil, "", errNoHeaders
			}
			tgt = i
		}
	}
	if src < 0 || tgt < 0 {
		return nil, "", errNoHeaders
	}
	for _, c := range cells {
		if c.Spans() {
			return nil, "", errSpannedCell
		}
	}

	s, t := cells[src], cells[tgt]
	var (
		layout string
		line   func(c visualinfo.Cell) int // which header line a cell is on
		along  func(c visualinfo.Cell) int // position along that line
	)
	switch {
	case s.Row == t.Row && s.Col != t.Col:
		layout = LayoutColumns
		line = func(c visualinfo.Cell) int { return c.Col }
		along = func(c visualinfo.Cell) int { return c.Row }
	case s.Col == t.Col && s.Row != t.Row:
		layout = LayoutRows
		line = func(c visualinfo.Cell) int { return c.Row }
		along = func(c visualinfo.Cell) int { return c.Col }
	default:
		return nil, "", errHeaderPlacing
	}

	var source, target []int
	for i, c := range cells {
		if i == src || i == tgt {
			continue
		}
		switch line(c) {
		case line(s):
			source = append(source, i)
		case line(t):
			target = append(target, i)
		default:
			return nil, "", errStrayCell
		}
	}
	byPosition := func(idx []int) {
		sort.SliceStable(idx, func(a, b int) bool {
			return along(cells[idx[a]]) < along(cells[idx[b]])
		})
	}
	byPosition(source)
	byPosition(target)

	out := make([]visualinfo.Cell, 0, len(cells))
	place := func(i, row, col int) {
		c := cells[i]
		c.Row, c.Col = row, col
		out = append(out, c)
	}
	place(src, 0, 0)
	place(tgt, 0, 1)
	for k := 0; k < len(source) || k < len(target); k++ {
		if k < len(source) {
			place(source[k], k+1, 0)
		}
		if k < len(target) {
			place(target[k], k+1, 1)
		}
	}
	return out, layout, nil
}

// sameLayout reports whether canonical describes the table as it is stored:
// same cell order and same coordinates.
func sameLayout(stored, canonical []visualinfo.Cell) bool {
	if len(stored) != len(canonical) {
		return false
	}
	for i := range stored {
		a, b := stored[i], canonical[i]
		if a.Row != b.Row || a.Col != b.Col || a.Text != b.Text {
			return false
		}
	}
	return true
}

func cellLayout(cells []visualinfo.Cell) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = fmt.Sprintf("(%d,%d) %s", c.Row, c.Col, c.Text)
	}
	return out
}
