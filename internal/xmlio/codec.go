package xmlio

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/hupe1980/xmangle/internal/record"
)

// decodeRecord consumes the subtree started by start and returns it as a
// record tree. Namespace qualifiers are stripped: the export documents use at
// most a single default namespace, which is re-emitted on the root element.
func decodeRecord(d *xml.Decoder, start xml.StartElement) (*record.Record, error) {
	rec := record.New(start.Name.Local)

	for _, a := range start.Attr {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}

		rec.Attrs = append(rec.Attrs, record.Attr{Name: a.Name.Local, Value: a.Value})
	}

	var text strings.Builder

	for {
		tok, err := d.Token()
		if err != nil {
			return nil, fmt.Errorf("parsing element %s: %w", rec.Kind, err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeRecord(d, t)
			if err != nil {
				return nil, err
			}

			rec.Children = append(rec.Children, child)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			rec.Text = text.String()

			// Inter-child whitespace is formatting, not data.
			if len(rec.Children) > 0 && strings.TrimSpace(rec.Text) == "" {
				rec.Text = ""
			}

			return rec, nil
		}
	}
}

// encodeRecord serializes a record tree. Leaf elements carrying text are
// written inline; element-only children go one per line, indented by depth.
func encodeRecord(buf *bytes.Buffer, rec *record.Record, depth int) {
	buf.WriteByte('<')
	buf.WriteString(rec.Kind)

	for _, a := range rec.Attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		writeEscaped(buf, a.Value)
		buf.WriteByte('"')
	}

	if len(rec.Children) == 0 && rec.Text == "" {
		buf.WriteString("/>")
		return
	}

	buf.WriteByte('>')

	writeEscaped(buf, rec.Text)

	for _, c := range rec.Children {
		buf.WriteByte('\n')

		for i := 0; i <= depth; i++ {
			buf.WriteByte('\t')
		}

		encodeRecord(buf, c, depth+1)
	}

	if len(rec.Children) > 0 {
		buf.WriteByte('\n')

		for i := 0; i < depth; i++ {
			buf.WriteByte('\t')
		}
	}

	buf.WriteString("</")
	buf.WriteString(rec.Kind)
	buf.WriteByte('>')
}

// Encode returns the serialized form of a single record.
func Encode(rec *record.Record) []byte {
	var buf bytes.Buffer

	encodeRecord(&buf, rec, 1)

	return buf.Bytes()
}

func writeEscaped(buf *bytes.Buffer, s string) {
	// xml.EscapeText never returns an error for a bytes.Buffer.
	_ = xml.EscapeText(buf, []byte(s))
}
