// Package plan implements the config assembler: it walks
// a compiled launch tree once and freezes it into a Plan — the flat,
// validated, locality-partitioned structure the bootstrap and process
// supervisor consume. No substitution, XML, or I/O happens here; this
// package only aggregates and validates what internal/compile already
// built.
package plan

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-roslaunch/roslaunch/internal/compile"
	"github.com/go-roslaunch/roslaunch/internal/names"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

// LocalMachineName is the built-in machine every node binds to when it
// omits a machine= attribute.
const LocalMachineName = "local"

// NodeSpec is one fully resolved node or test ready for process launch.
type NodeSpec struct {
	ResolvedName string
	Pkg          string
	Type         string
	Namespace    string
	Args         string
	Respawn      bool
	RespawnDelay float64
	Required     bool
	Output       tags.Output
	CWD          string
	LaunchPrefix string
	ClearParams  bool
	Env          map[string]string
	Remap        map[string]string
	Machine      string
	Local        bool
	SourceFile   string

	IsTest       bool
	TestName     string
	Retry        int
	TimeLimit    float64
	HasTimeLimit bool
}

// ParamSpec is one fully resolved <param>.
type ParamSpec struct {
	ResolvedName string
	Tag          *tags.Param
	SourceFile   string
}

// RosParamSpec is one fully resolved <rosparam>.
type RosParamSpec struct {
	Namespace  string
	Tag        *tags.RosParam
	SourceFile string
}

// MachineSpec is a canonicalized <machine>, surviving machine consolidation.
type MachineSpec struct {
	Name      string
	Address   string
	EnvLoader string
	SSHPort   int
	Username  string
	Password  string
	Default   tags.MachineDefault
	Timeout   float64
}

// Plan is the frozen, assembled launch configuration.
type Plan struct {
	Nodes       []*NodeSpec
	Params      []*ParamSpec
	RosParams   []*RosParamSpec
	ClearParams []string
	Machines    map[string]*MachineSpec
}

// LocalityChecker decides whether a machine is reachable as "this host"
// for the locality partition. Implemented by
// bootstrap-adjacent code backed by net.InterfaceAddrs/os/user so this
// package stays free of network and OS-user dependencies itself.
type LocalityChecker interface {
	IsLocalAddress(address string) bool
	IsCurrentUser(username string) bool
}

// Assemble walks tree and produces a Plan.4.
func Assemble(tree *compile.Tree, locality LocalityChecker) (*Plan, error) {
	asm := &assembler{
		byResolvedName: map[string]string{},
		machinesByKey:  map[string]string{},
		aliases:        map[string]string{},
	}
	p := &Plan{Machines: map[string]*MachineSpec{
		LocalMachineName: {Name: LocalMachineName, Address: "localhost"},
	}}

	if err := asm.walk(tree.Children, p); err != nil {
		return nil, err
	}

	p.ClearParams = unifyClearParams(asm.clearParamNamespaces)

	if err := asm.assignMachines(p, locality); err != nil {
		return nil, err
	}

	return p, nil
}

type assembler struct {
	byResolvedName       map[string]string
	clearParamNamespaces []string
	machinesByKey        map[string]string
	aliases              map[string]string // non-canonical machine name -> canonical name
}

func (a *assembler) walk(elements []compile.Element, p *Plan) error {
	for _, el := range elements {
		switch e := el.(type) {
		case *compile.NodeElement:
			spec := a.nodeSpec(e)
			if err := a.registerName(spec.ResolvedName, e.File); err != nil {
				return err
			}
			if e.Tag.ClearParams {
				a.clearParamNamespaces = append(a.clearParamNamespaces, names.NormalizeNamespace(spec.ResolvedName))
			}
			p.Nodes = append(p.Nodes, spec)
			a.collectParams(e.Params, e.Namespace, e.File, p)
			a.collectRosParams(e.RosParams, e.Namespace, e.File, p)

		case *compile.TestElement:
			spec := a.testSpec(e)
			if err := a.registerName(spec.ResolvedName, e.File); err != nil {
				return err
			}
			p.Nodes = append(p.Nodes, spec)
			a.collectParams(e.Params, e.Namespace, e.File, p)
			a.collectRosParams(e.RosParams, e.Namespace, e.File, p)

		case *compile.GroupElement:
			if e.ClearParams {
				a.clearParamNamespaces = append(a.clearParamNamespaces, names.NormalizeNamespace(e.Namespace))
			}
			if err := a.walk(e.Children, p); err != nil {
				return err
			}

		case *compile.IncludeElement:
			if e.ClearParams {
				a.clearParamNamespaces = append(a.clearParamNamespaces, names.NormalizeNamespace(e.Namespace))
			}
			if err := a.walk(e.Children, p); err != nil {
				return err
			}

		case *compile.ParamElement:
			p.Params = append(p.Params, &ParamSpec{
				ResolvedName: names.JoinNamespace(e.Namespace, e.Tag.Name),
				Tag:          e.Tag,
				SourceFile:   e.File,
			})

		case *compile.RosParamElement:
			p.RosParams = append(p.RosParams, &RosParamSpec{
				Namespace: e.Namespace, Tag: e.Tag, SourceFile: e.File,
			})

		case *compile.MachineElement:
			a.registerMachine(e.Tag, p)
		}
	}
	return nil
}

func (a *assembler) registerName(resolved, file string) error {
	if existing, ok := a.byResolvedName[resolved]; ok {
		return errors.Errorf("duplicate node name %q declared in both %q and %q", resolved, existing, file)
	}
	a.byResolvedName[resolved] = file
	return nil
}

func (a *assembler) nodeSpec(e *compile.NodeElement) *NodeSpec {
	resolved := names.JoinNamespace(e.Namespace, e.Tag.Name)
	machine := ""
	if e.Tag.HasMachine {
		machine = e.Tag.Machine
	}
	return &NodeSpec{
		ResolvedName: resolved,
		Pkg:          e.Tag.Pkg,
		Type:         e.Tag.Type,
		Namespace:    e.Namespace,
		Args:         e.Tag.Args,
		Respawn:      e.Tag.Respawn,
		RespawnDelay: e.Tag.RespawnDelay,
		Required:     e.Tag.Required,
		Output:       e.Tag.Output,
		CWD:          e.Tag.CWD,
		LaunchPrefix: e.Tag.LaunchPrefix,
		ClearParams:  e.Tag.ClearParams,
		Env:          mergeEnv(e.ScopeEnv, e.Env),
		Remap:        mergeRemap(e.ScopeRemap, e.Remap),
		Machine:      machine,
		SourceFile:   e.File,
	}
}

func (a *assembler) testSpec(e *compile.TestElement) *NodeSpec {
	resolved := names.JoinNamespace(e.Namespace, e.Tag.TestName)
	return &NodeSpec{
		ResolvedName: resolved,
		Pkg:          e.Tag.Pkg,
		Type:         e.Tag.Type,
		Namespace:    e.Namespace,
		Args:         e.Tag.Args,
		CWD:          e.Tag.CWD,
		Env:          mergeEnv(e.ScopeEnv, e.Env),
		Remap:        mergeRemap(e.ScopeRemap, e.Remap),
		SourceFile:   e.File,
		IsTest:       true,
		TestName:     e.Tag.TestName,
		Retry:        e.Tag.Retry,
		TimeLimit:    e.Tag.TimeLimit,
		HasTimeLimit: e.Tag.HasTimeLimit,
	}
}

func (a *assembler) collectParams(params []*tags.Param, namespace, file string, p *Plan) {
	for _, t := range params {
		p.Params = append(p.Params, &ParamSpec{
			ResolvedName: names.JoinNamespace(namespace, t.Name),
			Tag:          t,
			SourceFile:   file,
		})
	}
}

func (a *assembler) collectRosParams(rosparams []*tags.RosParam, namespace, file string, p *Plan) {
	for _, t := range rosparams {
		p.RosParams = append(p.RosParams, &RosParamSpec{Namespace: namespace, Tag: t, SourceFile: file})
	}
}

func mergeEnv(ambient map[string]string, local []*tags.Env) map[string]string {
	out := make(map[string]string, len(ambient)+len(local))
	for k, v := range ambient {
		out[k] = v
	}
	for _, e := range local {
		out[e.Name] = e.Value
	}
	return out
}

func mergeRemap(ambient map[string]string, local []*tags.Remap) map[string]string {
	out := make(map[string]string, len(ambient)+len(local))
	for k, v := range ambient {
		out[k] = v
	}
	for _, r := range local {
		out[r.From] = r.To
	}
	return out
}

// connectionKey identifies a machine by its connection parameters alone,
//.4's machine consolidation rule.
func connectionKey(m *tags.Machine) string {
	return strings.Join([]string{
		m.Address, strconv.Itoa(m.SSHPort), m.Username, m.Password, m.EnvLoader,
		strconv.FormatFloat(m.Timeout, 'f', -1, 64),
	}, "\x00")
}

func (a *assembler) registerMachine(m *tags.Machine, p *Plan) {
	key := connectionKey(m)
	if canonical, ok := a.machinesByKey[key]; ok {
		a.aliases[m.Name] = canonical
		return
	}
	a.machinesByKey[key] = m.Name
	p.Machines[m.Name] = &MachineSpec{
		Name: m.Name, Address: m.Address, EnvLoader: m.EnvLoader, SSHPort: m.SSHPort,
		Username: m.Username, Password: m.Password, Default: m.Default, Timeout: m.Timeout,
	}
}

// unifyClearParams implements clear-set unification: sort
// namespaces ascending by length and keep only the shortest ancestor
// among any set of mutual prefixes.
func unifyClearParams(namespaces []string) []string {
	uniq := map[string]bool{}
	for _, ns := range namespaces {
		uniq[ns] = true
	}
	all := make([]string, 0, len(uniq))
	for ns := range uniq {
		all = append(all, ns)
	}
	sort.Slice(all, func(i, j int) bool { return len(all[i]) < len(all[j]) })

	var kept []string
	for _, candidate := range all {
		covered := false
		for _, k := range kept {
			if isAncestorNamespace(k, candidate) {
				covered = true
				break
			}
		}
		if !covered {
			kept = append(kept, candidate)
		}
	}
	sort.Strings(kept)
	return kept
}

func isAncestorNamespace(ancestor, ns string) bool {
	if ancestor == ns {
		return true
	}
	return strings.HasPrefix(ns, strings.TrimSuffix(ancestor, "/")+"/")
}

// assignMachines resolves each node's machine reference against the
// canonicalized machine table, defaulting to LocalMachineName, and
// computes the locality partition.
func (a *assembler) assignMachines(p *Plan, locality LocalityChecker) error {
	for _, n := range p.Nodes {
		name := n.Machine
		if name == "" {
			name = LocalMachineName
		}
		if canonical, ok := a.aliases[name]; ok {
			name = canonical
		}
		spec, ok := p.Machines[name]
		if !ok {
			return errors.Errorf("node %q references undefined machine %q", n.ResolvedName, n.Machine)
		}
		n.Machine = name

		if name == LocalMachineName {
			n.Local = true
			continue
		}
		if locality == nil {
			n.Local = false
			continue
		}
		n.Local = locality.IsLocalAddress(spec.Address) &&
			(spec.Username == "" || locality.IsCurrentUser(spec.Username))
	}
	return nil
}
