package launch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
	"github.com/go-roslaunch/roslaunch/internal/plan"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

func tripletBody(valueXML string) string {
	return `<?xml version="1.0"?><methodResponse><params><param><value><array><data>` +
		`<value><int>1</int></value><value><string></string></value><value>` + valueXML + `</value>` +
		`</data></array></value></param></params></methodResponse>`
}

const malformedBody = `<?xml version="1.0"?><methodResponse><params><param><value><string>no triplet here</string></value></param></params></methodResponse>`

// fakeMaster answers getSystemState with an empty-but-well-formed system
// state, getParam with a malformed body (so ReconcileRunID sees "absent"
// and sets it), and everything else (setParam, deleteParam, ...) with a
// plain success triplet.
func fakeMaster(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "<methodName>getSystemState</methodName>"):
			w.Write([]byte(tripletBody(`<array><data><value><array><data></data></array></value>` +
				`<value><array><data></data></array></value><value><array><data></data></array></value></data></array>`)))
		case strings.Contains(string(body), "<methodName>getParam</methodName>"):
			w.Write([]byte(malformedBody))
		default:
			w.Write([]byte(tripletBody(`<int>1</int>`)))
		}
	}))
}

// writeFakePackage builds a minimal ROS package directory under root
// containing a package.xml manifest and an executable shell script, and
// returns a Locator whose search path covers it.
func writeFakePackage(t *testing.T, root, pkg, script string) *pkgpath.Locator {
	t.Helper()
	dir := filepath.Join(root, pkg)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.xml"), []byte("<package/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	scriptPath := filepath.Join(dir, "talker")
	if err := os.WriteFile(scriptPath, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return pkgpath.NewLocator(root)
}

func TestLocateExecutableFindsDirectMatch(t *testing.T) {
	root := t.TempDir()
	locator := writeFakePackage(t, root, "demo_pkg", "#!/bin/sh\nexit 0\n")

	got, err := locateExecutable(locator, "demo_pkg", "talker")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "demo_pkg", "talker")
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestLocateExecutableUnknownPackage(t *testing.T) {
	root := t.TempDir()
	locator := pkgpath.NewLocator(root)
	if _, err := locateExecutable(locator, "nonexistent", "talker"); err == nil {
		t.Error("expected error for unknown package")
	}
}

func TestGenerateRunIDIsNonEmptyAndVaries(t *testing.T) {
	a := GenerateRunID()
	b := GenerateRunID()
	if a == "" || b == "" {
		t.Fatal("expected non-empty run ids")
	}
	if a == b {
		t.Error("expected two generated run ids to differ")
	}
}

func TestLaunchStartsLocalNodeAndSpinsUntilShutdown(t *testing.T) {
	srv := fakeMaster(t)
	defer srv.Close()

	root := t.TempDir()
	locator := writeFakePackage(t, root, "demo_pkg", "#!/bin/sh\nsleep 5\n")
	logDir := filepath.Join(root, "logs")

	p := &plan.Plan{
		Nodes: []*plan.NodeSpec{
			{
				ResolvedName: "/talker",
				Pkg:          "demo_pkg",
				Type:         "talker",
				Local:        true,
				Output:       tags.OutputScreen,
			},
		},
		Machines: map[string]*plan.MachineSpec{},
	}

	os.Setenv("ROS_MASTER_URI", srv.URL)
	defer os.Unsetenv("ROS_MASTER_URI")
	// The node's default cwd is ROS_HOME; point it at a directory that exists.
	os.Setenv("ROS_HOME", root)
	defer os.Unsetenv("ROS_HOME")

	r, err := Launch(context.Background(), p, Options{
		CallerID: "/roslaunch",
		LogDir:   logDir,
		RunID:    "fixed-run-id",
		Locator:  locator,
	})
	if err != nil {
		t.Fatalf("Launch failed: %v", err)
	}
	defer r.Shutdown()

	if r.RunID != "fixed-run-id" {
		t.Errorf("expected RunID to be preserved, got %q", r.RunID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	r.Spin(ctx)

	if !r.Monitor.IsShutdown() {
		t.Error("expected Spin to shut the monitor down once ctx was cancelled")
	}
}

func TestLaunchFailsAndTearsDownOnUnresolvablePackage(t *testing.T) {
	srv := fakeMaster(t)
	defer srv.Close()

	root := t.TempDir()
	locator := pkgpath.NewLocator(root)

	p := &plan.Plan{
		Nodes: []*plan.NodeSpec{
			{ResolvedName: "/missing", Pkg: "nope", Type: "nope", Local: true},
		},
		Machines: map[string]*plan.MachineSpec{},
	}

	os.Setenv("ROS_MASTER_URI", srv.URL)
	defer os.Unsetenv("ROS_MASTER_URI")

	_, err := Launch(context.Background(), p, Options{
		CallerID: "/roslaunch",
		RunID:    "fixed-run-id",
		Locator:  locator,
	})
	if err == nil {
		t.Fatal("expected Launch to fail when a node's package cannot be located")
	}
}

func TestLaunchFailsOnUndefinedMachine(t *testing.T) {
	srv := fakeMaster(t)
	defer srv.Close()

	root := t.TempDir()
	locator := pkgpath.NewLocator(root)

	p := &plan.Plan{
		Nodes: []*plan.NodeSpec{
			{ResolvedName: "/remote_node", Pkg: "demo_pkg", Type: "talker", Local: false, Machine: "ghost"},
		},
		Machines: map[string]*plan.MachineSpec{},
	}

	os.Setenv("ROS_MASTER_URI", srv.URL)
	defer os.Unsetenv("ROS_MASTER_URI")

	_, err := Launch(context.Background(), p, Options{
		CallerID: "/roslaunch",
		RunID:    "fixed-run-id",
		Locator:  locator,
	})
	if err == nil {
		t.Fatal("expected Launch to fail when a node references an undefined machine")
	}
}
