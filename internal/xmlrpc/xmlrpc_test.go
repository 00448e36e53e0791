package xmlrpc

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestEmitValueScalarTypes(t *testing.T) {
	cases := []struct {
		value interface{}
		want  string
	}{
		{true, "<boolean>1</boolean>"},
		{int32(42), "<int>42</int>"},
		{3.5, "<double>3.5</double>"},
		{"hi&<", "<string>hi&amp;&lt;</string>"},
	}
	for _, c := range cases {
		var buf bytes.Buffer
		if err := emitValue(&buf, c.value); err != nil {
			t.Fatal(err)
		}
		if buf.String() != c.want {
			t.Errorf("emitValue(%v) = %q, want %q", c.value, buf.String(), c.want)
		}
	}
}

func TestEmitValueArrayAndStruct(t *testing.T) {
	var buf bytes.Buffer
	if err := emitValue(&buf, []interface{}{int32(1), "a"}); err != nil {
		t.Fatal(err)
	}
	got := buf.String()
	if !strings.Contains(got, "<array><data>") || !strings.Contains(got, "<int>1</int>") {
		t.Errorf("got %q", got)
	}
}

func TestParseValueRoundTripsViaCall(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(`<?xml version="1.0"?><methodResponse><params><param><value>` +
			`<array><data><value><int>1</int></value><value><string>caller_api</string></value></data></array>` +
			`</value></param></params></methodResponse>`))
	}))
	defer srv.Close()

	result, err := Call(context.Background(), srv.URL, "getParam", "/caller", "/foo")
	if err != nil {
		t.Fatal(err)
	}
	arr, ok := result.([]interface{})
	if !ok || len(arr) != 2 {
		t.Fatalf("got %#v", result)
	}
	if arr[0].(int32) != 1 || arr[1].(string) != "caller_api" {
		t.Errorf("got %#v", arr)
	}
}

func TestCallSurfacesFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><methodResponse><fault><value><struct>` +
			`<member><name>faultCode</name><value><int>1</int></value></member>` +
			`<member><name>faultString</name><value><string>boom</string></value></member>` +
			`</struct></value></fault></methodResponse>`))
	}))
	defer srv.Close()

	if _, err := Call(context.Background(), srv.URL, "getParam"); err == nil {
		t.Fatal("expected fault error")
	}
}

func TestCallNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if _, err := Call(context.Background(), srv.URL, "getParam"); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
