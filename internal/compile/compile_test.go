package compile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
	"github.com/go-roslaunch/roslaunch/internal/substitution"
)

func newTestCompiler() *Compiler {
	return NewCompiler(pkgpath.NewLocator(""), substitution.NewAnonMemo())
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileSimpleNode(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `
<launch>
  <node pkg="pkg_a" type="talker" name="talker"/>
</launch>`)

	c := newTestCompiler()
	tree, err := c.CompileFile(path, NewRootScope(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(tree.Children))
	}
	n, ok := tree.Children[0].(*NodeElement)
	if !ok {
		t.Fatalf("expected *NodeElement, got %T", tree.Children[0])
	}
	if n.Namespace != "/" || n.Tag.Name != "talker" {
		t.Errorf("got %+v", n)
	}
}

func TestCompileArgDefaultAndOverride(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `
<launch>
  <arg name="count" default="1"/>
  <param name="n" value="$(arg count)"/>
</launch>`)

	c := newTestCompiler()
	scope := NewRootScope(map[string]string{"count": "5"})
	tree, err := c.CompileFile(path, scope, nil)
	if err != nil {
		t.Fatal(err)
	}
	p := tree.Children[0].(*ParamElement)
	if p.Tag.StrValue != "5" {
		t.Errorf("expected CLI override to win over default, got %+v", p.Tag)
	}
}

func TestCompileIfUnlessGating(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `
<launch>
  <node pkg="p" type="t" name="skip" if="false"/>
  <node pkg="p" type="t" name="keep" unless="false"/>
</launch>`)

	c := newTestCompiler()
	tree, err := c.CompileFile(path, NewRootScope(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Children) != 1 {
		t.Fatalf("expected only the enabled node, got %d children", len(tree.Children))
	}
	if tree.Children[0].(*NodeElement).Tag.Name != "keep" {
		t.Errorf("wrong node survived gating")
	}
}

func TestCompileGroupNamespace(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `
<launch>
  <group ns="robot1">
    <node pkg="p" type="t" name="driver"/>
  </group>
</launch>`)

	c := newTestCompiler()
	tree, err := c.CompileFile(path, NewRootScope(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	g := tree.Children[0].(*GroupElement)
	if g.Namespace != "/robot1" {
		t.Errorf("got namespace %q", g.Namespace)
	}
	n := g.Children[0].(*NodeElement)
	if n.Namespace != "/robot1" {
		t.Errorf("got node namespace %q", n.Namespace)
	}
}

func TestCompileIncludePassesArgs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "child.launch", `
<launch>
  <arg name="name" default="default_name"/>
  <node pkg="p" type="t" name="$(arg name)"/>
</launch>`)
	parent := writeFile(t, dir, "parent.launch", `
<launch>
  <include file="child.launch">
    <arg name="name" value="from_parent"/>
  </include>
</launch>`)

	c := newTestCompiler()
	tree, err := c.CompileFile(parent, NewRootScope(nil), nil)
	if err != nil {
		t.Fatal(err)
	}
	inc := tree.Children[0].(*IncludeElement)
	n := inc.Children[0].(*NodeElement)
	if n.Tag.Name != "from_parent" {
		t.Errorf("got node name %q", n.Tag.Name)
	}
}

func TestCompileIncludeUnusedArgIsError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "child.launch", `<launch><node pkg="p" type="t" name="n"/></launch>`)
	parent := writeFile(t, dir, "parent.launch", `
<launch>
  <include file="child.launch">
    <arg name="never_declared" value="x"/>
  </include>
</launch>`)

	c := newTestCompiler()
	if _, err := c.CompileFile(parent, NewRootScope(nil), nil); err == nil {
		t.Fatal("expected error for arg never declared in included file")
	}
}

func TestCompileIncludeCycleDetected(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.launch")
	writeFile(t, dir, "a.launch", `<launch><include file="b.launch"/></launch>`)
	writeFile(t, dir, "b.launch", `<launch><include file="a.launch"/></launch>`)

	c := newTestCompiler()
	if _, err := c.CompileFile(a, NewRootScope(nil), nil); err == nil {
		t.Fatal("expected cycle detection error")
	}
}

func TestCompileUnknownRootElement(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `<robot/>`)
	c := newTestCompiler()
	if _, err := c.CompileFile(path, NewRootScope(nil), nil); err == nil {
		t.Fatal("expected error for non-launch root element")
	}
}

func TestCompileMalformedXML(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.launch", `<launch><node></launch>`)
	c := newTestCompiler()
	if _, err := c.CompileFile(path, NewRootScope(nil), nil); err == nil {
		t.Fatal("expected error for malformed XML")
	}
}
