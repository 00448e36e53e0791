// Package compile implements the launch-file compiler:
// parsing one XML file at a time into a tree of typed, enabled elements,
// threading a scoped symbol table through <group> nesting and <include>
// recursion, with cycle detection on the live include stack.
package compile

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
	"github.com/go-roslaunch/roslaunch/internal/substitution"
	"github.com/go-roslaunch/roslaunch/internal/tags"
)

// Compiler holds everything shared across an entire launch run: the
// package locator backing $(find) and the anon-id memo backing $(anon),
// both of which must be process-wide, not per-file.
type Compiler struct {
	Locator  *pkgpath.Locator
	Anon     *substitution.AnonMemo
	warnings []tags.Warning
}

// NewCompiler builds a Compiler sharing locator and anon memo across every
// file it compiles, including files reached through <include>.
func NewCompiler(locator *pkgpath.Locator, anon *substitution.AnonMemo) *Compiler {
	return &Compiler{Locator: locator, Anon: anon}
}

// Warnings returns every unknown-attribute warning accumulated so far,
// across every file compiled by this Compiler.
func (c *Compiler) Warnings() []tags.Warning {
	return c.warnings
}

func (c *Compiler) warn(ws []tags.Warning) {
	c.warnings = append(c.warnings, ws...)
}

// CompileFile reads, parses and compiles one launch file rooted at path,
//.3 steps 1-3. scope is the incoming caller scope (empty
// root scope for the top-level file, or the scope built by the <include>
// site for a nested file). includeStack lists the absolute paths of every
// file currently being compiled, outermost first, used for cycle
// detection.
func (c *Compiler) CompileFile(path string, scope *Scope, includeStack []string) (*Tree, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "launch file %q", path)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "launch file %q", absPath)
	}
	defer f.Close()

	root, err := parseXMLTree(f)
	if err != nil {
		return nil, errors.Wrapf(err, "launch file %q", absPath)
	}
	if root.Name != "launch" {
		return nil, errors.Errorf("launch file %q: root element is <%s>, expected <launch>", absPath, root.Name)
	}

	ctx := substitution.NewContext(scope.Args, c.Locator, c.Anon)
	rootAttrs, err := resolveAttrs(ctx, root.Attrs)
	if err != nil {
		return nil, errors.Wrapf(err, "launch file %q", absPath)
	}
	_, lw, err := tags.ParseLaunch(absPath, rootAttrs)
	if err != nil {
		return nil, errors.Wrapf(err, "launch file %q", absPath)
	}
	c.warn(lw)

	declaredArgs := map[string]bool{}
	children, err := c.compileChildren("launch", root.Children, scope, absPath, includeStack, declaredArgs)
	if err != nil {
		return nil, err
	}

	return &Tree{File: absPath, Children: children, DeclaredArgs: declaredArgs}, nil
}

func resolveAttrs(ctx *substitution.Context, raw map[string]string) (tags.Attrs, error) {
	out := make(tags.Attrs, len(raw))
	for k, v := range raw {
		expanded, err := ctx.Expand(v)
		if err != nil {
			return nil, errors.Wrapf(err, "attribute %q", k)
		}
		out[k] = expanded
	}
	return out, nil
}

// compileChildren walks rawChildren in document order, building the
// enabled Elements for one <launch> or <group> body.
// declaredArgs accumulates every <arg> name declared anywhere in the
// current file, including inside nested <group>s, but not across an
// <include> boundary (a fresh map is used when recursing into one).
func (c *Compiler) compileChildren(parentTag string, rawChildren []*rawElement, scope *Scope, file string, includeStack []string, declaredArgs map[string]bool) ([]Element, error) {
	var elements []Element
	ctx := substitution.NewContext(scope.Args, c.Locator, c.Anon)

	for _, child := range rawChildren {
		if !tags.AllowsChild(parentTag, child.Name) {
			return nil, errors.Errorf("%s: unexpected <%s> inside <%s>", file, child.Name, parentTag)
		}

		attrs, err := resolveAttrs(ctx, child.Attrs)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: <%s>", file, child.Name)
		}

		switch child.Name {
		case "arg":
			a, w, err := tags.ParseArg(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: <arg name=%q>", file, a.Name)
			}
			if !enabled {
				continue
			}
			applyArg(scope, a)
			declaredArgs[a.Name] = true

		case "env":
			e, w, err := tags.ParseEnv(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			scope.setEnv(e.Name, e.Value)

		case "remap":
			r, w, err := tags.ParseRemap(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			scope.setRemap(r.From, r.To)

		case "param":
			p, w, err := tags.ParseParam(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			elements = append(elements, &ParamElement{Tag: p, Namespace: scope.Namespace, File: file})

		case "rosparam":
			rp, w, err := tags.ParseRosParam(file, attrs, child.Text)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			if rp.SubstValue && rp.InlineYAML != "" {
				expanded, err := ctx.Expand(rp.InlineYAML)
				if err != nil {
					return nil, errors.Wrapf(err, "%s: <rosparam> body", file)
				}
				rp.InlineYAML = expanded
			}
			elements = append(elements, &RosParamElement{Tag: rp, Namespace: scope.Namespace, File: file})

		case "machine":
			m, w, err := tags.ParseMachine(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			elements = append(elements, &MachineElement{Tag: m, File: file})

		case "node":
			n, w, err := tags.ParseNode(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			envs, remaps, params, rosparams, err := c.compileLeafChildren(child.Children, scope, file, "node")
			if err != nil {
				return nil, err
			}
			ns := scope.Namespace
			if n.Namespace != "" {
				ns = joinNamespace(scope.Namespace, n.Namespace)
			}
			elements = append(elements, &NodeElement{
				Tag: n, Env: envs, Remap: remaps, Params: params, RosParams: rosparams,
				Namespace: ns, File: file,
				ScopeEnv: cloneMap(scope.Env), ScopeRemap: cloneMap(scope.Remap),
			})

		case "test":
			tst, w, err := tags.ParseTest(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			envs, remaps, params, rosparams, err := c.compileLeafChildren(child.Children, scope, file, "test")
			if err != nil {
				return nil, err
			}
			ns := scope.Namespace
			if tst.Namespace != "" {
				ns = joinNamespace(scope.Namespace, tst.Namespace)
			}
			elements = append(elements, &TestElement{
				Tag: tst, Env: envs, Remap: remaps, Params: params, RosParams: rosparams,
				Namespace: ns, File: file,
				ScopeEnv: cloneMap(scope.Env), ScopeRemap: cloneMap(scope.Remap),
			})

		case "group":
			g, w, err := tags.ParseGroup(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			childScope := scope.withNamespace(g.Namespace)
			grandChildren, err := c.compileChildren("group", child.Children, childScope, file, includeStack, declaredArgs)
			if err != nil {
				return nil, err
			}
			elements = append(elements, &GroupElement{
				Tag: g, Namespace: childScope.Namespace, ClearParams: g.ClearParams,
				Children: grandChildren, File: file,
			})

		case "include":
			inc, w, err := tags.ParseInclude(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", file)
			}
			enabled, err := tags.Enabled(attrs)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			element, err := c.compileInclude(inc, child.Children, scope, file, includeStack, ctx)
			if err != nil {
				return nil, err
			}
			elements = append(elements, element)
		}
	}
	return elements, nil
}

// applyArg implements <arg>'s override rule: a "value" form always wins;
// a "default" form only takes effect when the name has not already been
// bound (by a command-line override or, for an included file, by an
// <arg> child passed at the <include> site).
func applyArg(scope *Scope, a *tags.Arg) {
	if a.HasValue {
		scope.setArg(a.Name, a.Value)
		return
	}
	if _, exists := scope.Args[a.Name]; !exists {
		scope.setArg(a.Name, a.Default)
	}
}

// compileLeafChildren collects the env/remap/param/rosparam children of a
// <node> or <test>, which do not themselves recurse further.
func (c *Compiler) compileLeafChildren(rawChildren []*rawElement, scope *Scope, file, parentTag string) (envs []*tags.Env, remaps []*tags.Remap, params []*tags.Param, rosparams []*tags.RosParam, err error) {
	ctx := substitution.NewContext(scope.Args, c.Locator, c.Anon)
	for _, child := range rawChildren {
		if !tags.AllowsChild(parentTag, child.Name) {
			return nil, nil, nil, nil, errors.Errorf("%s: unexpected <%s> inside <%s>", file, child.Name, parentTag)
		}
		attrs, aerr := resolveAttrs(ctx, child.Attrs)
		if aerr != nil {
			return nil, nil, nil, nil, aerr
		}
		enabled, eerr := tags.Enabled(attrs)
		if eerr != nil {
			return nil, nil, nil, nil, eerr
		}
		if !enabled {
			continue
		}
		switch child.Name {
		case "env":
			e, w, perr := tags.ParseEnv(file, attrs)
			c.warn(w)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			envs = append(envs, e)
		case "remap":
			r, w, perr := tags.ParseRemap(file, attrs)
			c.warn(w)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			remaps = append(remaps, r)
		case "param":
			p, w, perr := tags.ParseParam(file, attrs)
			c.warn(w)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			params = append(params, p)
		case "rosparam":
			rp, w, perr := tags.ParseRosParam(file, attrs, child.Text)
			c.warn(w)
			if perr != nil {
				return nil, nil, nil, nil, perr
			}
			rosparams = append(rosparams, rp)
		}
	}
	return envs, remaps, params, rosparams, nil
}

// compileInclude resolves and recursively compiles one <include>.
func (c *Compiler) compileInclude(inc *tags.Include, rawArgChildren []*rawElement, scope *Scope, file string, includeStack []string, ctx *substitution.Context) (Element, error) {
	resolvedPath := resolveIncludePath(inc.File, file)

	for _, ancestor := range includeStack {
		if ancestor == resolvedPath {
			return nil, errors.Errorf("%s: cycle in the launch graph including %q", file, resolvedPath)
		}
	}

	childScope := &Scope{
		Env:       cloneMap(scope.Env),
		Remap:     cloneMap(scope.Remap),
		Namespace: joinNamespace(scope.Namespace, inc.Namespace),
	}
	if inc.PassAllArgs {
		childScope.Args = cloneMap(scope.Args)
	} else {
		childScope.Args = map[string]string{}
	}

	usedArgs := map[string]bool{}
	for _, argChild := range rawArgChildren {
		attrs, err := resolveAttrs(ctx, argChild.Attrs)
		if err != nil {
			return nil, err
		}
		enabled, err := tags.Enabled(attrs)
		if err != nil {
			return nil, err
		}
		if !enabled {
			continue
		}
		switch argChild.Name {
		case "arg":
			a, w, err := tags.ParseArg(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, err
			}
			value := a.Value
			if a.HasDefault {
				value = a.Default
			}
			childScope.Args[a.Name] = value
			usedArgs[a.Name] = true
		case "env":
			e, w, err := tags.ParseEnv(file, attrs)
			c.warn(w)
			if err != nil {
				return nil, err
			}
			childScope.setEnv(e.Name, e.Value)
		default:
			return nil, errors.Errorf("%s: <include> may only contain <arg> and <env> children, found <%s>", file, argChild.Name)
		}
	}

	nextStack := append(append([]string{}, includeStack...), resolvedPath)
	subtree, err := c.CompileFile(resolvedPath, childScope, nextStack)
	if err != nil {
		return nil, err
	}
	for name := range usedArgs {
		if !subtree.DeclaredArgs[name] {
			return nil, errors.Errorf("%s: arg %q passed to <include file=%q> was never declared there", file, name, inc.File)
		}
	}

	return &IncludeElement{
		Tag: inc, ResolvedPath: resolvedPath, Namespace: childScope.Namespace,
		ClearParams: inc.ClearParams, Children: subtree.Children, File: file,
	}, nil
}

// resolveIncludePath: a relative include path is resolved against the
// including file's directory, not
// the process's working directory. $(find) substitution already happened
// before this point, so a path already absolute (or already package-
// rooted) passes through untouched.
func resolveIncludePath(target, includingFile string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(includingFile), target)
}

func cloneMap(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
