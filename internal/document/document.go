// Package document validates EVE API XML documents and turns them into
// canonical rows.
//
// A document looks like:
//
//	<eveapi version="2">
//	  <currentTime>2011-04-01 12:00:00</currentTime>
//	  <result>
//	    <rowset name="refTypes" key="refTypeID" columns="refTypeID,refTypeName">
//	      <row refTypeID="0" refTypeName="Undefined"/>
//	    </rowset>
//	  </result>
//	  <cachedUntil>2011-04-02 12:00:00</cachedUntil>
//	</eveapi>
//
// or carries <error code="203">Authentication failure.</error> in place of
// <result>.
package document

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// TimeLayout is the timestamp format used throughout the API.
const TimeLayout = "2006-01-02 15:04:05"

// ErrInvalid is wrapped by every InvalidError.
var ErrInvalid = errors.New("structurally invalid document")

// InvalidError describes why a document cannot be preserved normally.
type InvalidError struct {
	Reason string
	// Code and Message are set when the document carried an error element.
	Code    int
	Message string
}

func (e *InvalidError) Error() string {
	return ErrInvalid.Error() + ": " + e.Reason
}

func (e *InvalidError) Unwrap() error {
	return ErrInvalid
}

// Row is one canonical row: field name to raw value.
type Row map[string]string

// Document is a parsed API response. The raw bytes are retained so rows can
// be re-read any number of times.
type Document struct {
	raw []byte

	CurrentTime time.Time
	CachedUntil string
	ErrorCode   int
	ErrorText   string
	HasError    bool
	HasResult   bool
}

// Parse reads the document envelope. Malformed XML yields an *InvalidError.
func Parse(raw []byte) (*Document, error) {
	d := &Document{raw: raw}

	dec := xml.NewDecoder(bytes.NewReader(raw))
	depth := 0
	sawRoot := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &InvalidError{Reason: "malformed xml: " + err.Error()}
		}

		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				sawRoot = true
				continue
			}
			if depth != 2 {
				continue
			}
			switch t.Name.Local {
			case "currentTime":
				text, err := readText(dec)
				if err != nil {
					return nil, &InvalidError{Reason: "malformed xml: " + err.Error()}
				}
				depth--
				if ts, err := time.Parse(TimeLayout, text); err == nil {
					d.CurrentTime = ts
				}
			case "cachedUntil":
				text, err := readText(dec)
				if err != nil {
					return nil, &InvalidError{Reason: "malformed xml: " + err.Error()}
				}
				depth--
				d.CachedUntil = text
			case "error":
				d.HasError = true
				d.ErrorCode, _ = strconv.Atoi(attr(t, "code"))
				text, err := readText(dec)
				if err != nil {
					return nil, &InvalidError{Reason: "malformed xml: " + err.Error()}
				}
				depth--
				d.ErrorText = text
			case "result":
				d.HasResult = true
			}
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, &InvalidError{Reason: "empty document"}
	}
	return d, nil
}

// Raw returns the bytes the document was parsed from.
func (d *Document) Raw() []byte {
	return d.raw
}

// Validate reports an *InvalidError when the document carries an error
// element, has no result, or lacks any of the expected shapes.
func (d *Document) Validate(shapes ...Shape) error {
	if d.HasError {
		return &InvalidError{
			Reason:  fmt.Sprintf("api error %d: %s", d.ErrorCode, d.ErrorText),
			Code:    d.ErrorCode,
			Message: d.ErrorText,
		}
	}
	if !d.HasResult {
		return &InvalidError{Reason: "missing result element"}
	}
	for _, s := range shapes {
		found, err := d.contains(s)
		if err != nil {
			return &InvalidError{Reason: "malformed xml: " + err.Error()}
		}
		if !found {
			return &InvalidError{Reason: "missing " + s.String()}
		}
	}
	return nil
}

// CacheInterval returns how long the source asks results to be cached.
// cachedUntil may be a number of seconds or a timestamp, which is measured
// against currentTime. A missing, unparsable or non-positive hint yields
// fallback.
func (d *Document) CacheInterval(fallback time.Duration) time.Duration {
	hint := strings.TrimSpace(d.CachedUntil)
	if hint == "" {
		return fallback
	}
	if secs, err := strconv.ParseInt(hint, 10, 64); err == nil {
		if secs <= 0 {
			return fallback
		}
		return time.Duration(secs) * time.Second
	}
	until, err := time.Parse(TimeLayout, hint)
	if err != nil || d.CurrentTime.IsZero() {
		return fallback
	}
	if interval := until.Sub(d.CurrentTime); interval > 0 {
		return interval
	}
	return fallback
}

// readText returns the trimmed character data of the element just opened
// and consumes its end tag.
func readText(dec *xml.Decoder) (string, error) {
	var b strings.Builder
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if depth == 1 {
				b.Write(t)
			}
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
	}
	return strings.TrimSpace(b.String()), nil
}

func attr(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

func attrs(el xml.StartElement) Row {
	row := make(Row, len(el.Attr))
	for _, a := range el.Attr {
		row[a.Name.Local] = a.Value
	}
	return row
}
