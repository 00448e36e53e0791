package compile

import "github.com/go-roslaunch/roslaunch/internal/tags"

// Element is one compiled, enabled node of the launch tree. Disabled
// (if/unless-gated-out) tags never produce an Element at all, per
// "drop it entirely (no side effects)".
type Element interface {
	// SourceFile is the launch file this element was declared in.
	SourceFile() string
}

// NodeElement is a compiled <node>, with its <env>/<remap>/<param>
// children collected in document order.
type NodeElement struct {
	Tag        *tags.Node
	Env        []*tags.Env
	Remap      []*tags.Remap
	Params     []*tags.Param
	RosParams  []*tags.RosParam
	Namespace  string
	File       string
	ScopeEnv   map[string]string // ambient <env> from enclosing <group>/<launch>
	ScopeRemap map[string]string // ambient <remap> from enclosing <group>/<launch>
}

func (n *NodeElement) SourceFile() string { return n.File }

// TestElement is a compiled <test>, structurally identical to NodeElement
// but never respawned and never assembled into the running graph unless a
// future test-runner consumes it.
type TestElement struct {
	Tag        *tags.Test
	Env        []*tags.Env
	Remap      []*tags.Remap
	Params     []*tags.Param
	RosParams  []*tags.RosParam
	Namespace  string
	File       string
	ScopeEnv   map[string]string
	ScopeRemap map[string]string
}

func (t *TestElement) SourceFile() string { return t.File }

// GroupElement is a compiled <group>: a pure namespace scope with nested
// elements compiled under the joined namespace.
type GroupElement struct {
	Tag         *tags.Group
	Namespace   string
	ClearParams bool
	Children    []Element
	File        string
}

func (g *GroupElement) SourceFile() string { return g.File }

// IncludeElement is a compiled <include>: the resolved path of the
// included file plus its fully compiled subtree.
type IncludeElement struct {
	Tag          *tags.Include
	ResolvedPath string
	Namespace    string
	ClearParams  bool
	Children     []Element
	File         string
}

func (i *IncludeElement) SourceFile() string { return i.File }

// ParamElement is a top-level (or group-scoped) <param> not nested inside
// a <node>/<test>.
type ParamElement struct {
	Tag       *tags.Param
	Namespace string
	File      string
}

func (p *ParamElement) SourceFile() string { return p.File }

// RosParamElement is a top-level (or group-scoped) <rosparam>.
type RosParamElement struct {
	Tag       *tags.RosParam
	Namespace string
	File      string
}

func (r *RosParamElement) SourceFile() string { return r.File }

// MachineElement is a compiled <machine> declaration.
type MachineElement struct {
	Tag  *tags.Machine
	File string
}

func (m *MachineElement) SourceFile() string { return m.File }

// Tree is the compiled result of one launch file: its top-level children
// and the set of <arg> names declared anywhere inside it (used by the
// parent compiler, across an <include>, to reject unused arg overrides
//.3 step 5).
type Tree struct {
	File         string
	Children     []Element
	DeclaredArgs map[string]bool
}
