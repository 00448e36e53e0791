// Package xmlrpc implements the XML-RPC wire protocol used to talk to a
// running parameter server/master: request/response envelope encoding,
// value encoding for bool/int/double/string/array/struct/base64, and a
// thin HTTP POST client. The launcher is only ever an XML-RPC client, never
// a server, so only the client half of the wire format is implemented here.
package xmlrpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/xml"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

func xmlEscape(s string) string {
	var buf bytes.Buffer
	xml.Escape(&buf, []byte(s))
	return buf.String()
}

// emitValue serializes one Go value as an XML-RPC <value> payload. It
// covers exactly the type set requires: bool, any integer
// kind, any float kind, string, []byte (base64), slices (array) and
// map[string]interface{} (struct).
func emitValue(buf *bytes.Buffer, value interface{}) error {
	if bs, ok := value.([]byte); ok {
		buf.WriteString("<base64>")
		buf.WriteString(base64.StdEncoding.EncodeToString(bs))
		buf.WriteString("</base64>")
		return nil
	}

	val := reflect.ValueOf(value)
	if !val.IsValid() {
		return nil
	}

	switch val.Kind() {
	case reflect.Bool:
		if val.Bool() {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		buf.WriteString("<int>")
		buf.WriteString(strconv.FormatInt(val.Int(), 10))
		buf.WriteString("</int>")
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		buf.WriteString("<int>")
		buf.WriteString(strconv.FormatInt(int64(val.Uint()), 10))
		buf.WriteString("</int>")
	case reflect.Float32, reflect.Float64:
		buf.WriteString("<double>")
		buf.WriteString(strconv.FormatFloat(val.Float(), 'g', -1, 64))
		buf.WriteString("</double>")
	case reflect.Array, reflect.Slice:
		buf.WriteString("<array><data>")
		for i := 0; i < val.Len(); i++ {
			buf.WriteString("<value>")
			if err := emitValue(buf, val.Index(i).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value>")
		}
		buf.WriteString("</data></array>")
	case reflect.Map:
		if val.Type().Key().Kind() != reflect.String {
			return errors.New("xmlrpc: map key must be string")
		}
		buf.WriteString("<struct>")
		for _, key := range val.MapKeys() {
			buf.WriteString("<member><name>")
			buf.WriteString(xmlEscape(key.String()))
			buf.WriteString("</name><value>")
			if err := emitValue(buf, val.MapIndex(key).Interface()); err != nil {
				return err
			}
			buf.WriteString("</value></member>")
		}
		buf.WriteString("</struct>")
	case reflect.String:
		buf.WriteString("<string>")
		buf.WriteString(xmlEscape(val.String()))
		buf.WriteString("</string>")
	default:
		return errors.Errorf("xmlrpc: unsupported value kind %v", val.Kind())
	}
	return nil
}

func emitRequest(buf *bytes.Buffer, method string, args ...interface{}) error {
	buf.WriteString(xml.Header)
	buf.WriteString("<methodCall><methodName>")
	buf.WriteString(xmlEscape(method))
	buf.WriteString("</methodName><params>")
	for _, arg := range args {
		buf.WriteString("<param><value>")
		if err := emitValue(buf, arg); err != nil {
			return err
		}
		buf.WriteString("</value></param>")
	}
	buf.WriteString("</params></methodCall>")
	return nil
}

func nextTag(d *xml.Decoder) (xml.StartElement, error) {
	for {
		token, err := d.Token()
		if err != nil {
			return xml.StartElement{}, err
		}
		if elem, ok := token.(xml.StartElement); ok {
			return elem, nil
		}
	}
}

func expectNextTag(d *xml.Decoder, name string) (xml.StartElement, error) {
	tag, err := nextTag(d)
	if err != nil {
		return xml.StartElement{}, err
	}
	if tag.Name.Local != name {
		return xml.StartElement{}, errors.Errorf("xmlrpc: expected <%s>, got <%s>", name, tag.Name.Local)
	}
	return tag, nil
}

func charData(d *xml.Decoder) (string, error) {
	token, err := d.Token()
	if err != nil {
		return "", err
	}
	data, ok := token.(xml.CharData)
	if !ok {
		return "", errors.New("xmlrpc: expected character data")
	}
	return string(data.Copy()), nil
}

// parseValue parses a value after its <value> tag has already been
// consumed, leaving the matching </value> consumed on return.
func parseValue(d *xml.Decoder) (interface{}, error) {
	token, err := d.Token()
	if err != nil {
		return nil, err
	}

	switch t := token.(type) {
	case xml.StartElement:
		switch t.Name.Local {
		case "boolean":
			s, err := charData(d)
			if err != nil {
				return nil, err
			}
			i, err := strconv.ParseInt(s, 10, 8)
			if err != nil {
				return nil, errors.Wrap(err, "xmlrpc: boolean")
			}
			d.Skip()
			d.Skip()
			return i != 0, nil
		case "i4", "int":
			s, err := charData(d)
			if err != nil {
				return nil, err
			}
			i, err := strconv.ParseInt(s, 0, 32)
			if err != nil {
				return nil, errors.Wrap(err, "xmlrpc: int")
			}
			d.Skip()
			d.Skip()
			return int32(i), nil
		case "double":
			s, err := charData(d)
			if err != nil {
				return nil, err
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, errors.Wrap(err, "xmlrpc: double")
			}
			d.Skip()
			d.Skip()
			return f, nil
		case "string":
			tok, err := d.Token()
			if err != nil {
				return nil, err
			}
			if data, ok := tok.(xml.CharData); ok {
				s := string(data.Copy())
				d.Skip()
				d.Skip()
				return s, nil
			}
			if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "string" {
				d.Skip()
				return "", nil
			}
			return nil, errors.New("xmlrpc: malformed <string>")
		case "base64":
			s, err := charData(d)
			if err != nil {
				return nil, err
			}
			bs, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, errors.Wrap(err, "xmlrpc: base64")
			}
			d.Skip()
			d.Skip()
			return bs, nil
		case "array":
			if _, err := expectNextTag(d, "data"); err != nil {
				return nil, err
			}
			var arr []interface{}
			for {
				tok, err := d.Token()
				if err != nil {
					return nil, err
				}
				switch e := tok.(type) {
				case xml.StartElement:
					if e.Name.Local == "value" {
						v, err := parseValue(d)
						if err != nil {
							return nil, err
						}
						arr = append(arr, v)
					}
				case xml.EndElement:
					if e.Name.Local == "array" {
						d.Skip()
						return arr, nil
					}
				}
			}
		case "struct":
			m := make(map[string]interface{})
			var name string
			var value interface{}
			for {
				tok, err := d.Token()
				if err != nil {
					return nil, err
				}
				switch e := tok.(type) {
				case xml.StartElement:
					switch e.Name.Local {
					case "name":
						name, err = charData(d)
						if err != nil {
							return nil, err
						}
					case "value":
						value, err = parseValue(d)
						if err != nil {
							return nil, err
						}
					}
				case xml.EndElement:
					switch e.Name.Local {
					case "member":
						m[name] = value
					case "struct":
						d.Skip()
						return m, nil
					}
				}
			}
		default:
			return nil, errors.Errorf("xmlrpc: unsupported value type <%s>", t.Name.Local)
		}
	case xml.CharData:
		if stripped := strings.TrimSpace(string(t.Copy())); stripped != "" {
			d.Skip()
			return stripped, nil
		}
		return parseValue(d)
	case xml.EndElement:
		return "", nil
	}
	return nil, errors.New("xmlrpc: invalid value token")
}

func parseResponse(d *xml.Decoder) (ok bool, result interface{}, err error) {
	if _, err = expectNextTag(d, "methodResponse"); err != nil {
		return
	}
	se, err := nextTag(d)
	if err != nil {
		return
	}
	switch se.Name.Local {
	case "params":
		if _, err = expectNextTag(d, "param"); err != nil {
			return
		}
		if _, err = expectNextTag(d, "value"); err != nil {
			return
		}
		result, err = parseValue(d)
		if err != nil {
			return
		}
		ok = true
		return
	case "fault":
		if _, err = expectNextTag(d, "value"); err != nil {
			return
		}
		result, err = parseValue(d)
		return false, result, err
	}
	err = errors.New("xmlrpc: malformed response")
	return
}

// Call performs one XML-RPC request against url and returns the decoded
// result value, or an error wrapping the XML-RPC fault when the remote
// end reports one.
func Call(ctx context.Context, url string, method string, args ...interface{}) (interface{}, error) {
	var buf bytes.Buffer
	if err := emitRequest(&buf, method, args...); err != nil {
		return nil, errors.Wrapf(err, "xmlrpc: building request for %q", method)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return nil, errors.Wrapf(err, "xmlrpc: building HTTP request for %q", method)
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "xmlrpc: calling %q", method)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("xmlrpc: %q returned HTTP %s", method, resp.Status)
	}

	ok, result, err := parseResponse(xml.NewDecoder(resp.Body))
	if err != nil {
		return nil, errors.Wrapf(err, "xmlrpc: parsing response for %q", method)
	}
	if ok {
		return result, nil
	}

	m, _ := result.(map[string]interface{})
	code, _ := m["faultCode"].(int32)
	msg, _ := m["faultString"].(string)
	if msg != "" {
		return nil, errors.Errorf("xmlrpc: fault calling %q: code=%d message=%s", method, code, msg)
	}
	return nil, errors.Errorf("xmlrpc: malformed fault response calling %q", method)
}
