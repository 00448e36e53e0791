package plan

import (
	"testing"

	"github.com/go-roslaunch/roslaunch/internal/compile"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

type fakeLocality struct {
	localAddrs map[string]bool
	user       string
}

func (f fakeLocality) IsLocalAddress(addr string) bool { return f.localAddrs[addr] }
func (f fakeLocality) IsCurrentUser(u string) bool      { return u == f.user }

func node(name, file string, clearParams bool, machine string, hasMachine bool) *compile.NodeElement {
	return &compile.NodeElement{
		Tag: &tags.Node{Name: name, Pkg: "p", Type: "t", ClearParams: clearParams, Machine: machine, HasMachine: hasMachine},
		Namespace: "/",
		File:      file,
	}
}

func TestAssembleDuplicateNodeName(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		node("n", "a.launch", false, "", false),
		node("n", "b.launch", false, "", false),
	}}
	if _, err := Assemble(tree, nil); err == nil {
		t.Fatal("expected duplicate node name error")
	}
}

func TestAssembleClearParamsUnification(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		&compile.GroupElement{Tag: &tags.Group{}, Namespace: "/a", ClearParams: true, Children: []compile.Element{
			&compile.GroupElement{Tag: &tags.Group{}, Namespace: "/a/b", ClearParams: true},
		}},
	}}
	p, err := Assemble(tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.ClearParams) != 1 || p.ClearParams[0] != "/a/" {
		t.Errorf("expected only /a/ to survive unification, got %v", p.ClearParams)
	}
}

func TestAssembleMachineConsolidationAndAssignment(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		&compile.MachineElement{Tag: &tags.Machine{Name: "m1", Address: "10.0.0.1", SSHPort: 22}},
		&compile.MachineElement{Tag: &tags.Machine{Name: "m2", Address: "10.0.0.1", SSHPort: 22}},
		node("n", "a.launch", false, "m2", true),
	}}
	p, err := Assemble(tree, fakeLocality{localAddrs: map[string]bool{"10.0.0.1": true}, user: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := p.Machines["m2"]; ok {
		t.Error("m2 should have been consolidated into m1")
	}
	if p.Nodes[0].Machine != "m1" {
		t.Errorf("expected node's machine reference rewritten to canonical 'm1', got %q", p.Nodes[0].Machine)
	}
	if !p.Nodes[0].Local {
		t.Error("expected node bound to a locally-addressed machine with no username constraint to be local")
	}
}

func TestAssembleUnresolvedMachineIsError(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		node("n", "a.launch", false, "ghost", true),
	}}
	if _, err := Assemble(tree, nil); err == nil {
		t.Fatal("expected error for unresolved machine reference")
	}
}

func TestAssembleDefaultsToLocalMachine(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		node("n", "a.launch", false, "", false),
	}}
	p, err := Assemble(tree, nil)
	if err != nil {
		t.Fatal(err)
	}
	if p.Nodes[0].Machine != LocalMachineName || !p.Nodes[0].Local {
		t.Errorf("expected node with no machine attribute to bind local, got %+v", p.Nodes[0])
	}
}

func TestAssembleLocalityUserMismatch(t *testing.T) {
	tree := &compile.Tree{Children: []compile.Element{
		&compile.MachineElement{Tag: &tags.Machine{Name: "m1", Address: "10.0.0.1", Username: "bob"}},
		node("n", "a.launch", false, "m1", true),
	}}
	p, err := Assemble(tree, fakeLocality{localAddrs: map[string]bool{"10.0.0.1": true}, user: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if p.Nodes[0].Local {
		t.Error("expected node to be non-local when configured username does not match current OS user")
	}
}
