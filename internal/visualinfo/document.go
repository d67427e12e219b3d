// Package visualinfo models the "visual info" JSON produced by the OCR
// pipeline: an ordered list of layout elements with their labels, text,
// position, table cells and tags.
//
// Documents are loaded losslessly. Each element keeps its original bytes and
// is re-emitted byte-for-byte unless one of its Set* methods patched it;
// unknown top-level keys are kept in their original order.
package visualinfo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/buger/jsonparser"
)

const elementsKey = "elements"

// Document is an ordered sequence of elements plus any other top-level keys.
// Order approximates reading order. Callers may remove or reorder Elements;
// Encode writes whatever the slice holds.
type Document struct {
	Elements []*Element

	keys []topLevelKey
	path string
}

type topLevelKey struct {
	name []byte // raw, still escaped
	raw  []byte
}

// Load reads and parses the visual-info file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewDocumentError("Load", path, err, "")
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, NewDocumentError("Load", path, err, "")
	}
	doc.path = path
	return doc, nil
}

// Parse decodes a visual-info document. Only the document envelope is
// validated here; individual elements that fail to decode are kept as
// malformed elements (see Element.Err).
func Parse(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidDocument)
	}
	if len(data) == 0 || data[0] != '{' {
		return nil, fmt.Errorf("%w: top level is not an object", ErrInvalidDocument)
	}

	doc := &Document{}
	var elementsErr error
	err := jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		value = rawValue(value, dataType)
		doc.keys = append(doc.keys, topLevelKey{name: append([]byte(nil), key...), raw: value})

		if string(key) != elementsKey {
			return nil
		}
		switch dataType {
		case jsonparser.Null:
			return nil
		case jsonparser.Array:
		default:
			elementsErr = fmt.Errorf("%w: %q is %s, not an array", ErrInvalidDocument, elementsKey, dataType)
			return elementsErr
		}
		_, err := jsonparser.ArrayEach(value, func(item []byte, itemType jsonparser.ValueType, _ int, _ error) {
			doc.Elements = append(doc.Elements, ParseElement(rawValue(item, itemType)))
		})
		return err
	})
	if elementsErr != nil {
		return nil, elementsErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// Path returns the file the document was loaded from, if any.
func (d *Document) Path() string { return d.path }

// Clone returns a deep copy that shares no element state with d.
func (d *Document) Clone() *Document {
	out := &Document{
		Elements: make([]*Element, len(d.Elements)),
		keys:     make([]topLevelKey, len(d.keys)),
		path:     d.path,
	}
	copy(out.keys, d.keys)
	for i, e := range d.Elements {
		out.Elements[i] = e.Clone()
	}
	return out
}

// Encode serialises the document. Element bytes are written exactly as held,
// so unmodified elements are byte-identical to the input.
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("{\n")

	keys := d.keys
	if !d.hasElementsKey() && len(d.Elements) > 0 {
		keys = append(append([]topLevelKey(nil), keys...), topLevelKey{name: []byte(elementsKey)})
	}

	for i, k := range keys {
		buf.WriteString(`  "`)
		buf.Write(k.name)
		buf.WriteString(`": `)
		if string(k.name) == elementsKey {
			d.writeElements(&buf)
		} else {
			buf.Write(k.raw)
		}
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("}\n")

	out := buf.Bytes()
	if !json.Valid(out) {
		return nil, NewDocumentError("Encode", d.path, ErrInvalidDocument, "encoded output is not valid JSON")
	}
	return out, nil
}

func (d *Document) writeElements(buf *bytes.Buffer) {
	if len(d.Elements) == 0 {
		buf.WriteString("[]")
		return
	}
	buf.WriteString("[\n")
	for i, e := range d.Elements {
		buf.WriteString("    ")
		buf.Write(e.raw)
		if i < len(d.Elements)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	buf.WriteString("  ]")
}

func (d *Document) hasElementsKey() bool {
	for _, k := range d.keys {
		if string(k.name) == elementsKey {
			return true
		}
	}
	return false
}

// rawValue restores the quotes jsonparser strips from string values.
func rawValue(value []byte, dataType jsonparser.ValueType) []byte {
	if dataType == jsonparser.String {
		out := make([]byte, 0, len(value)+2)
		out = append(out, '"')
		out = append(out, value...)
		return append(out, '"')
	}
	return append([]byte(nil), value...)
}
