package document

import (
	"bytes"
	"encoding/xml"
	"io"
	"iter"
	"strconv"
)

// ShapeKind selects how rows are extracted from <result>.
type ShapeKind int

const (
	// Rowset yields the attributes of every direct <row> child of the
	// <rowset name="..."> element.
	Rowset ShapeKind = iota
	// Element yields the attributes of the first element with the given
	// name as a single row.
	Element
	// Fields yields one row built from the text of <result>'s children that
	// have neither attributes nor child elements.
	Fields
)

// Shape is the expected location of rows within a document.
type Shape struct {
	Kind ShapeKind
	// Name is the rowset name attribute (empty matches the first rowset)
	// or the element name. Unused for Fields.
	Name string
}

func (s Shape) String() string {
	switch s.Kind {
	case Rowset:
		if s.Name == "" {
			return "rowset"
		}
		return "rowset " + strconv.Quote(s.Name)
	case Element:
		return "element <" + s.Name + ">"
	case Fields:
		return "result fields"
	default:
		return "unknown shape"
	}
}

// Rows returns the rows for shape. Each range over the sequence re-reads the
// document from the start. A decoding error is yielded once as the final
// element.
func (d *Document) Rows(s Shape) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		stopped := false
		_, err := d.scan(s, func(r Row) bool {
			if !yield(r, nil) {
				stopped = true
				return false
			}
			return true
		})
		if err != nil && !stopped {
			yield(nil, err)
		}
	}
}

// Collect drains a row sequence.
func Collect(rows iter.Seq2[Row, error]) ([]Row, error) {
	var out []Row
	for r, err := range rows {
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

func (d *Document) contains(s Shape) (bool, error) {
	return d.scan(s, func(Row) bool { return false })
}

// scan walks <result> looking for shape and passes rows to emit until emit
// returns false. found reports whether the shape's element was present.
func (d *Document) scan(s Shape, emit func(Row) bool) (found bool, err error) {
	dec := xml.NewDecoder(bytes.NewReader(d.raw))
	depth := 0
	resultDepth := 0
	fields := Row{}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return false, nil
		}
		if err != nil {
			return false, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if resultDepth == 0 {
				if depth == 2 && t.Name.Local == "result" {
					resultDepth = depth
				}
				continue
			}

			switch s.Kind {
			case Rowset:
				if t.Name.Local == "rowset" && (s.Name == "" || attr(t, "name") == s.Name) {
					return true, emitRowset(dec, emit)
				}
			case Element:
				if t.Name.Local == s.Name {
					emit(attrs(t))
					return true, nil
				}
			case Fields:
				if depth == resultDepth+1 {
					text, leaf, err := readLeaf(dec)
					if err != nil {
						return false, err
					}
					depth--
					if leaf && len(t.Attr) == 0 {
						fields[t.Name.Local] = text
					}
				}
			}

		case xml.EndElement:
			if resultDepth > 0 && depth == resultDepth {
				if s.Kind == Fields && len(fields) > 0 {
					emit(fields)
					return true, nil
				}
				return false, nil
			}
			depth--
		}
	}
}

// emitRowset is called just after a <rowset> start tag and consumes through
// its end tag.
func emitRowset(dec *xml.Decoder, emit func(Row) bool) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "row" {
				if err := dec.Skip(); err != nil {
					return err
				}
				continue
			}
			row := attrs(t)
			// Nested rowsets inside a row belong to other shapes.
			if err := dec.Skip(); err != nil {
				return err
			}
			if !emit(row) {
				return nil
			}
		case xml.EndElement:
			return nil
		}
	}
}

// readLeaf consumes the element just opened and returns its text. leaf is
// false when the element has element children.
func readLeaf(dec *xml.Decoder) (text string, leaf bool, err error) {
	leaf = true
	var buf bytes.Buffer
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", false, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if depth == 1 {
				buf.Write(t)
			}
		case xml.StartElement:
			leaf = false
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return string(bytes.TrimSpace(buf.Bytes())), leaf, nil
}
