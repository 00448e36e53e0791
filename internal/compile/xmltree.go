package compile

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/pkg/errors"
)

// rawElement is one XML element read in document order, attributes folded
// into a plain map and character data collected verbatim (needed for
// <rosparam>'s inline YAML body). Low-level token walking is used here
// rather than a struct-tag unmarshaler, which would lose both document
// order and the ability to flag unrecognized attributes.
type rawElement struct {
	Name     string
	Attrs    map[string]string
	Children []*rawElement
	Text     string
}

// parseXMLTree reads one well-formed XML document and returns its root
// element. Any I/O or well-formedness failure is reported with the
// document unread past the failure point.3 step 1.
func parseXMLTree(r io.Reader) (*rawElement, error) {
	dec := xml.NewDecoder(r)
	var root *rawElement
	var stack []*rawElement
	var text strings.Builder

	flushText := func() {
		if len(stack) == 0 {
			text.Reset()
			return
		}
		if s := text.String(); s != "" {
			stack[len(stack)-1].Text += s
		}
		text.Reset()
	}

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "malformed XML")
		}
		switch t := tok.(type) {
		case xml.StartElement:
			flushText()
			el := &rawElement{Name: t.Name.Local, Attrs: make(map[string]string, len(t.Attr))}
			for _, a := range t.Attr {
				el.Attrs[a.Name.Local] = a.Value
			}
			if len(stack) > 0 {
				stack[len(stack)-1].Children = append(stack[len(stack)-1].Children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			flushText()
			if len(stack) == 0 {
				return nil, errors.New("malformed XML: unmatched closing tag")
			}
			stack = stack[:len(stack)-1]
		}
	}
	if root == nil {
		return nil, errors.New("malformed XML: no root element")
	}
	if len(stack) != 0 {
		return nil, errors.New("malformed XML: unclosed element")
	}
	return root, nil
}
