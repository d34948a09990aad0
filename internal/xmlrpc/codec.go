// Package xmlrpc implements the XML-RPC wire format, a method table server
// with introspection and multicall, and a small client.
package xmlrpc

import (
	"bufio"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// DateTimeLayout is the canonical dateTime.iso8601 encoding.
const DateTimeLayout = "20060102T15:04:05"

var dateLayouts = []string{
	DateTimeLayout,
	"20060102T15:04:05Z07:00",
	"20060102T15:04:05Z",
	"20060102T150405Z",
	"20060102T150405",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	time.RFC3339,
}

// Call is a decoded methodCall.
type Call struct {
	Method string
	Params []any
}

type xValue struct {
	Int      *string   `xml:"int"`
	I4       *string   `xml:"i4"`
	I8       *string   `xml:"i8"`
	Boolean  *string   `xml:"boolean"`
	String   *string   `xml:"string"`
	Double   *string   `xml:"double"`
	DateTime *string   `xml:"dateTime.iso8601"`
	Base64   *string   `xml:"base64"`
	Struct   *xStruct  `xml:"struct"`
	Array    *xArray   `xml:"array"`
	Nil      *struct{} `xml:"nil"`
	Text     string    `xml:",chardata"`
}

type xStruct struct {
	Members []xMember `xml:"member"`
}

type xMember struct {
	Name  string `xml:"name"`
	Value xValue `xml:"value"`
}

type xArray struct {
	Values []xValue `xml:"data>value"`
}

type xParam struct {
	Value xValue `xml:"value"`
}

type xMethodCall struct {
	XMLName xml.Name `xml:"methodCall"`
	Method  string   `xml:"methodName"`
	Params  []xParam `xml:"params>param"`
}

type xMethodResponse struct {
	XMLName xml.Name `xml:"methodResponse"`
	Params  []xParam `xml:"params>param"`
	Fault   *xParam  `xml:"fault"`
}

func newDecoder(r io.Reader) *xml.Decoder {
	dec := xml.NewDecoder(r)
	dec.CharsetReader = charset.NewReaderLabel
	return dec
}

// DecodeCall parses a methodCall document.
func DecodeCall(r io.Reader) (Call, error) {
	var raw xMethodCall
	if err := newDecoder(r).Decode(&raw); err != nil {
		return Call{}, fmt.Errorf("decode method call: %w", err)
	}
	method := strings.TrimSpace(raw.Method)
	if method == "" {
		return Call{}, errors.New("decode method call: missing methodName")
	}
	params := make([]any, 0, len(raw.Params))
	for i, p := range raw.Params {
		v, err := p.Value.decode()
		if err != nil {
			return Call{}, fmt.Errorf("decode param %d: %w", i, err)
		}
		params = append(params, v)
	}
	return Call{Method: method, Params: params}, nil
}

// DecodeResponse parses a methodResponse. A fault is returned as *Fault.
func DecodeResponse(r io.Reader) (any, error) {
	var raw xMethodResponse
	if err := newDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode method response: %w", err)
	}
	if raw.Fault != nil {
		v, err := raw.Fault.Value.decode()
		if err != nil {
			return nil, fmt.Errorf("decode fault: %w", err)
		}
		m, _ := v.(map[string]any)
		code, _ := m["faultCode"].(int)
		msg, _ := m["faultString"].(string)
		return nil, &Fault{Code: code, String: msg}
	}
	if len(raw.Params) == 0 {
		return nil, nil
	}
	v, err := raw.Params[0].Value.decode()
	if err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return v, nil
}

func (v xValue) decode() (any, error) {
	switch {
	case v.Int != nil:
		return parseInt(*v.Int)
	case v.I4 != nil:
		return parseInt(*v.I4)
	case v.I8 != nil:
		return parseInt(*v.I8)
	case v.Boolean != nil:
		switch strings.TrimSpace(*v.Boolean) {
		case "1", "true":
			return true, nil
		case "0", "false":
			return false, nil
		default:
			return nil, fmt.Errorf("bad boolean %q", *v.Boolean)
		}
	case v.String != nil:
		return *v.String, nil
	case v.Double != nil:
		f, err := strconv.ParseFloat(strings.TrimSpace(*v.Double), 64)
		if err != nil {
			return nil, fmt.Errorf("bad double %q", *v.Double)
		}
		return f, nil
	case v.DateTime != nil:
		return ParseDateTime(*v.DateTime)
	case v.Base64 != nil:
		clean := strings.Map(func(r rune) rune {
			if r == ' ' || r == '\n' || r == '\r' || r == '\t' {
				return -1
			}
			return r
		}, *v.Base64)
		b, err := base64.StdEncoding.DecodeString(clean)
		if err != nil {
			return nil, fmt.Errorf("bad base64: %w", err)
		}
		return b, nil
	case v.Struct != nil:
		out := make(map[string]any, len(v.Struct.Members))
		for _, m := range v.Struct.Members {
			mv, err := m.Value.decode()
			if err != nil {
				return nil, fmt.Errorf("member %s: %w", m.Name, err)
			}
			out[strings.TrimSpace(m.Name)] = mv
		}
		return out, nil
	case v.Array != nil:
		out := make([]any, 0, len(v.Array.Values))
		for i, item := range v.Array.Values {
			iv, err := item.decode()
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			out = append(out, iv)
		}
		return out, nil
	case v.Nil != nil:
		return nil, nil
	default:
		// An untyped value is a string.
		return v.Text, nil
	}
}

func parseInt(s string) (int, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad int %q", s)
	}
	return int(n), nil
}

// ParseDateTime accepts the compact and dashed ISO 8601 forms clients send.
// Times without a zone are read as UTC.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("bad dateTime.iso8601 %q", s)
}

// EncodeCall writes a methodCall document.
func EncodeCall(w io.Writer, method string, params ...any) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	bw.WriteString("<methodCall><methodName>")
	xml.EscapeText(bw, []byte(method))
	bw.WriteString("</methodName><params>")
	for _, p := range params {
		bw.WriteString("<param>")
		if err := encodeValue(bw, p); err != nil {
			return err
		}
		bw.WriteString("</param>")
	}
	bw.WriteString("</params></methodCall>\n")
	return bw.Flush()
}

// EncodeResponse writes a successful methodResponse.
func EncodeResponse(w io.Writer, result any) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	bw.WriteString("<methodResponse><params><param>")
	if err := encodeValue(bw, result); err != nil {
		return err
	}
	bw.WriteString("</param></params></methodResponse>\n")
	return bw.Flush()
}

// EncodeFault writes a fault methodResponse.
func EncodeFault(w io.Writer, f *Fault) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(xml.Header)
	bw.WriteString("<methodResponse><fault>")
	if err := encodeValue(bw, f.value()); err != nil {
		return err
	}
	bw.WriteString("</fault></methodResponse>\n")
	return bw.Flush()
}

func encodeValue(w *bufio.Writer, v any) error {
	w.WriteString("<value>")
	if err := encodeInner(w, v); err != nil {
		return err
	}
	w.WriteString("</value>")
	return nil
}

func encodeInner(w *bufio.Writer, v any) error {
	switch t := v.(type) {
	case nil:
		w.WriteString("<nil/>")
		return nil
	case string:
		w.WriteString("<string>")
		xml.EscapeText(w, []byte(t))
		w.WriteString("</string>")
		return nil
	case bool:
		if t {
			w.WriteString("<boolean>1</boolean>")
		} else {
			w.WriteString("<boolean>0</boolean>")
		}
		return nil
	case time.Time:
		w.WriteString("<dateTime.iso8601>" + t.UTC().Format(DateTimeLayout) + "</dateTime.iso8601>")
		return nil
	case []byte:
		w.WriteString("<base64>" + base64.StdEncoding.EncodeToString(t) + "</base64>")
		return nil
	case *Fault:
		return encodeInner(w, t.value())
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n := rv.Int()
		if n > math.MaxInt32 || n < math.MinInt32 {
			w.WriteString("<i8>" + strconv.FormatInt(n, 10) + "</i8>")
		} else {
			w.WriteString("<int>" + strconv.FormatInt(n, 10) + "</int>")
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		w.WriteString("<int>" + strconv.FormatUint(rv.Uint(), 10) + "</int>")
	case reflect.Float32, reflect.Float64:
		w.WriteString("<double>" + strconv.FormatFloat(rv.Float(), 'f', -1, 64) + "</double>")
	case reflect.String:
		return encodeInner(w, rv.String())
	case reflect.Bool:
		return encodeInner(w, rv.Bool())
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return encodeInner(w, nil)
		}
		return encodeInner(w, rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		w.WriteString("<array><data>")
		for i := 0; i < rv.Len(); i++ {
			if err := encodeValue(w, rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		w.WriteString("</data></array>")
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("xmlrpc: unsupported map key type %s", rv.Type().Key())
		}
		keys := make([]string, 0, rv.Len())
		for _, k := range rv.MapKeys() {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		w.WriteString("<struct>")
		for _, k := range keys {
			w.WriteString("<member><name>")
			xml.EscapeText(w, []byte(k))
			w.WriteString("</name>")
			if err := encodeValue(w, rv.MapIndex(reflect.ValueOf(k).Convert(rv.Type().Key())).Interface()); err != nil {
				return err
			}
			w.WriteString("</member>")
		}
		w.WriteString("</struct>")
	default:
		return fmt.Errorf("xmlrpc: unsupported type %T", v)
	}
	return nil
}
