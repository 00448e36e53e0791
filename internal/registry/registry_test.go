package registry

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func xmlHeader() string { return `<?xml version="1.0"?>` }

func tripletResponse(code int, message, valueXML string) string {
	return xmlHeader() + `<methodResponse><params><param><value><array><data>` +
		`<value><int>` + itoa(code) + `</int></value>` +
		`<value><string>` + message + `</string></value>` +
		`<value>` + valueXML + `</value>` +
		`</data></array></value></param></params></methodResponse>`
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	if neg {
		return "-" + string(digits)
	}
	return string(digits)
}

func staticServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(body))
	}))
}

func TestGetParamSuccess(t *testing.T) {
	srv := staticServer(t, tripletResponse(1, "ok", "<string>hello</string>"))
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	v, err := c.GetParam(context.Background(), "/foo")
	if err != nil {
		t.Fatal(err)
	}
	if v.(string) != "hello" {
		t.Errorf("got %#v", v)
	}
}

func TestGetParamMalformedIsNilNil(t *testing.T) {
	srv := staticServer(t, xmlHeader()+`<methodResponse><params><param><value><string>not a triplet</string></value></param></params></methodResponse>`)
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	v, err := c.GetParam(context.Background(), "/foo")
	if err != nil {
		t.Fatalf("expected permissive nil error, got %v", err)
	}
	if v != nil {
		t.Errorf("expected nil value, got %#v", v)
	}
}

func TestHasParamTrue(t *testing.T) {
	srv := staticServer(t, tripletResponse(1, "ok", "<boolean>1</boolean>"))
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	ok, err := c.HasParam(context.Background(), "/foo")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("expected true")
	}
}

func TestSetParamFailureCode(t *testing.T) {
	srv := staticServer(t, tripletResponse(0, "denied", "<int>0</int>"))
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	if err := c.SetParam(context.Background(), "/foo", "bar"); err == nil {
		t.Fatal("expected error for non-success status code")
	}
}

func TestClearParamSendsEmptyStruct(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Write([]byte(tripletResponse(1, "", "<int>1</int>")))
	}))
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	if err := c.ClearParam(context.Background(), "/ns"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "<struct></struct>") {
		t.Errorf("expected empty struct in request body, got %q", body)
	}
}

func TestSetYamlParamRecursesIntoMapping(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body := string(data)
		mu.Lock()
		for _, marker := range []string{"/ns/a/b", "/ns/a/c"} {
			if strings.Contains(body, marker) {
				paths = append(paths, marker)
			}
		}
		mu.Unlock()
		w.Write([]byte(tripletResponse(1, "", "<int>1</int>")))
	}))
	defer srv.Close()

	c := NewClient("/launch", srv.URL)
	err := c.SetYamlParam(context.Background(), "/ns", []byte("a:\n  b: 1\n  c: 2\n"))
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 {
		t.Fatalf("expected two leaf setParam calls, got %v", paths)
	}
}

func TestSetYamlParamScalarRoot(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Write([]byte(tripletResponse(1, "", "<int>1</int>")))
	}))
	defer srv.Close()

	c := NewClient("/launch", srv.URL)
	if err := c.SetYamlParam(context.Background(), "/ns/scalar", []byte("42")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(body, "/ns/scalar") {
		t.Errorf("expected setParam at /ns/scalar, got %q", body)
	}
}

func TestGetSystemState(t *testing.T) {
	value := `<array><data>` +
		`<value><array><data><value><array><data>` +
		`<value><string>/topic</string></value>` +
		`<value><array><data><value><string>/node1</string></value></data></array></value>` +
		`</data></array></value></data></array></value>` +
		`<value><array><data></data></array></value>` +
		`<value><array><data></data></array></value>` +
		`</data></array>`
	srv := staticServer(t, tripletResponse(1, "", value))
	defer srv.Close()
	c := NewClient("/launch", srv.URL)
	state, err := c.GetSystemState(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if nodes := state.Publishers["/topic"]; len(nodes) != 1 || nodes[0] != "/node1" {
		t.Errorf("got %#v", state.Publishers)
	}
}
