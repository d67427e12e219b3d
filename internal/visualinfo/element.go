package visualinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// Element is one detected layout unit of a visual-info document.
//
// The element owns its original JSON bytes. Accessors read a typed view
// decoded from those bytes; the Set* methods patch the bytes in place and
// re-decode, so keys the engine does not understand survive untouched.
type Element struct {
	raw   []byte
	view  elementView
	tags  []string
	cells []Cell

	tagList bool
	err     error
}

type elementView struct {
	ID        string          `json:"id"`
	PageIndex int             `json:"pageIndex"`
	Category  categoryView    `json:"category"`
	Content   contentView     `json:"content"`
	BBox      bboxView        `json:"bbox"`
	Table     *tableView      `json:"table"`
	Tags      json.RawMessage `json:"tags"`
}

type categoryView struct {
	Label Label       `json:"label"`
	Type  ElementType `json:"type"`
}

type contentView struct {
	Text string `json:"text"`
}

type bboxView struct {
	Top float64 `json:"top"`
}

type tableView struct {
	Cells []json.RawMessage `json:"cells"`
}

// Cell is one table cell. Row and Col are zero-based.
type Cell struct {
	Row     int
	Col     int
	RowSpan int
	ColSpan int
	Text    string

	raw []byte
}

type cellView struct {
	Row     int         `json:"row"`
	Col     int         `json:"col"`
	RowSpan int         `json:"rowSpan"`
	ColSpan int         `json:"colSpan"`
	Text    string      `json:"text"`
	Content contentView `json:"content"`
}

// Spans reports whether the cell covers more than one grid slot.
func (c Cell) Spans() bool {
	return c.RowSpan > 1 || c.ColSpan > 1
}

// ParseElement builds an element from its raw JSON. Decoding failures do not
// return an error: the element is kept as malformed and Err reports why.
func ParseElement(raw []byte) *Element {
	e := &Element{raw: append([]byte(nil), bytes.TrimSpace(raw)...)}
	e.decode()
	return e
}

func (e *Element) decode() {
	if len(e.raw) == 0 || e.raw[0] != '{' {
		e.fail(fmt.Errorf("%w: element is not an object", ErrMalformedElement))
		return
	}
	var view elementView
	if err := json.Unmarshal(e.raw, &view); err != nil {
		e.fail(fmt.Errorf("%w: %v", ErrMalformedElement, err))
		return
	}

	var cells []Cell
	if view.Table != nil {
		cells = make([]Cell, 0, len(view.Table.Cells))
		for i, rawCell := range view.Table.Cells {
			var cv cellView
			if err := json.Unmarshal(rawCell, &cv); err != nil {
				e.fail(fmt.Errorf("%w: table cell %d: %v", ErrMalformedElement, i, err))
				return
			}
			text := cv.Content.Text
			if text == "" {
				text = cv.Text
			}
			cells = append(cells, Cell{
				Row:     cv.Row,
				Col:     cv.Col,
				RowSpan: cv.RowSpan,
				ColSpan: cv.ColSpan,
				Text:    text,
				raw:     []byte(rawCell),
			})
		}
	}

	e.view = view
	e.err = nil
	e.tags = nil
	e.tagList = false
	// tags of an unexpected shape are left alone rather than failing the element
	if len(view.Tags) > 0 {
		if json.Unmarshal(view.Tags, &e.tags) == nil {
			e.tagList = e.tags != nil
		} else {
			e.tags = nil
		}
	}
	e.cells = cells
}

// fail marks the element malformed. The id is still recovered when it is a
// plain string so issues can point at the element.
func (e *Element) fail(err error) {
	e.view = elementView{}
	e.tags, e.cells, e.tagList = nil, nil, false
	e.err = err
	if id, idErr := jsonparser.GetString(e.raw, "id"); idErr == nil {
		e.view.ID = id
	}
}

// Err reports why the element could not be decoded, or nil.
func (e *Element) Err() error { return e.err }

// ID returns the element id as stored.
func (e *Element) ID() string { return e.view.ID }

// Ref returns the id, or "unknown" when the element has none.
func (e *Element) Ref() string {
	if e.view.ID == "" {
		return "unknown"
	}
	return e.view.ID
}

func (e *Element) PageIndex() int { return e.view.PageIndex }
func (e *Element) Label() Label { return e.view.Category.Label }
func (e *Element) Type() ElementType { return e.view.Category.Type }
func (e *Element) RawText() string { return e.view.Content.Text }
func (e *Element) Top() float64 { return e.view.BBox.Top }
func (e *Element) IsTable() bool { return e.view.Category.Type == TypeTable }
func (e *Element) HasTagList() bool { return e.tagList }

// Text returns the content text with surrounding whitespace removed.
func (e *Element) Text() string {
	return strings.TrimSpace(e.view.Content.Text)
}

// Tags returns a copy of the element's tag list.
func (e *Element) Tags() []string {
	return append([]string(nil), e.tags...)
}

// Cells returns a copy of the table cells, in stored order.
func (e *Element) Cells() []Cell {
	return append([]Cell(nil), e.cells...)
}

// Raw returns a copy of the element's current JSON bytes.
func (e *Element) Raw() []byte {
	return append([]byte(nil), e.raw...)
}

// Clone returns an independent copy of the element.
func (e *Element) Clone() *Element {
	return ParseElement(e.raw)
}

// SetCategory relabels the element, writing both category.label and
// category.type. Only allowed labels may be written.
func (e *Element) SetCategory(label Label, typ ElementType) error {
	if e.err != nil {
		return e.err
	}
	if !label.IsAllowed() {
		return fmt.Errorf("%w: %q", ErrLabelNotAllowed, label)
	}
	raw, err := patch(e.raw, jsonString(string(label)), "category", "label")
	if err != nil {
		return err
	}
	raw, err = patch(raw, jsonString(string(typ)), "category", "type")
	if err != nil {
		return err
	}
	return e.replace(raw)
}

// SetTags replaces the element's tag list.
func (e *Element) SetTags(tags []string) error {
	if e.err != nil {
		return e.err
	}
	if tags == nil {
		tags = []string{}
	}
	value, err := json.Marshal(tags)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPatchFailed, err)
	}
	raw, err := patch(e.raw, value, "tags")
	if err != nil {
		return err
	}
	return e.replace(raw)
}

// SetCells rewrites table.cells from cells. Each cell keeps its original keys;
// only row and col are rewritten.
func (e *Element) SetCells(cells []Cell) error {
	if e.err != nil {
		return e.err
	}
	var arr bytes.Buffer
	arr.WriteByte('[')
	for i, c := range cells {
		if i > 0 {
			arr.WriteString(", ")
		}
		raw := c.raw
		if len(raw) == 0 {
			raw = []byte("{}")
		}
		var err error
		raw, err = patch(raw, []byte(strconv.Itoa(c.Row)), "row")
		if err != nil {
			return err
		}
		raw, err = patch(raw, []byte(strconv.Itoa(c.Col)), "col")
		if err != nil {
			return err
		}
		arr.Write(raw)
	}
	arr.WriteByte(']')

	raw, err := patch(e.raw, arr.Bytes(), "table", "cells")
	if err != nil {
		return err
	}
	return e.replace(raw)
}

func (e *Element) replace(raw []byte) error {
	previous := e.raw
	e.raw = raw
	e.decode()
	if e.err != nil {
		e.raw = previous
		e.decode()
		return fmt.Errorf("%w: patched element no longer decodes", ErrPatchFailed)
	}
	return nil
}

// patch sets keys to value on a private copy of data.
func patch(data, value []byte, keys ...string) ([]byte, error) {
	out, err := jsonparser.Set(append([]byte(nil), data...), value, keys...)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrPatchFailed, strings.Join(keys, "."), err)
	}
	return out, nil
}

func jsonString(s string) []byte {
	b, _ := json.Marshal(s)
	return b
}
