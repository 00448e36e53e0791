// Package substitution expands $(cmd args...) expressions inside launch-file
// attribute text: $(arg), $(env), $(optenv), $(find), $(anon).
// There is no natural third-party library for this — it is a small
// fixed-point regex substitution rather than a reach for a templating
// engine.
package substitution

import (
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
)

// maxIterations bounds the fixed-point loop so a self-referential chain of
// substitutions is reported as an error instead of hanging.
const maxIterations = 64

var exprRe = regexp.MustCompile(`\$\(([a-zA-Z_][a-zA-Z0-9_]*)((?:\s+[^()]+)*)\)`)

// Context carries everything a substitution command needs to resolve: the
// current scope's declared args, the package locator backing $(find), and
// the process-wide anon-id memo backing $(anon).
type Context struct {
	Args    map[string]string
	Locator *pkgpath.Locator
	Anon    *AnonMemo

	// LookupEnv defaults to os.LookupEnv; overridable for tests.
	LookupEnv func(string) (string, bool)
}

// NewContext builds a Context over the given arg scope, sharing locator and
// anon memo across an entire launch run.
func NewContext(args map[string]string, locator *pkgpath.Locator, anon *AnonMemo) *Context {
	return &Context{Args: args, Locator: locator, Anon: anon, LookupEnv: os.LookupEnv}
}

// Expand resolves every $(...) substitution in text to a fixed point,
// left-to-right within each pass.1 and the "Substitution
// fixed point" testable property.
func (c *Context) Expand(text string) (string, error) {
	current := text
	for i := 0; i < maxIterations; i++ {
		next, changed, err := c.expandOnce(current)
		if err != nil {
			return "", err
		}
		if !changed {
			return next, nil
		}
		current = next
	}
	return "", errors.Errorf("substitution: exceeded %d iterations expanding %q (cycle?)", maxIterations, text)
}

func (c *Context) expandOnce(text string) (result string, changed bool, err error) {
	var b strings.Builder
	last := 0
	for _, loc := range exprRe.FindAllSubmatchIndex([]byte(text), -1) {
		b.WriteString(text[last:loc[0]])
		cmd := text[loc[2]:loc[3]]
		argsStr := strings.TrimSpace(text[loc[4]:loc[5]])
		var args []string
		if argsStr != "" {
			args = strings.Fields(argsStr)
		}
		value, e := c.dispatch(cmd, args)
		if e != nil {
			return "", false, errors.Wrapf(e, "substitution $(%s %s)", cmd, argsStr)
		}
		b.WriteString(value)
		last = loc[1]
		changed = true
	}
	b.WriteString(text[last:])
	return b.String(), changed, nil
}

func (c *Context) dispatch(cmd string, args []string) (string, error) {
	switch cmd {
	case "arg":
		return c.evalArg(args)
	case "env":
		return c.evalEnv(args)
	case "optenv":
		return c.evalOptenv(args)
	case "find":
		return c.evalFind(args)
	case "anon":
		return c.evalAnon(args)
	default:
		return "", errors.Errorf("unknown substitution command %q", cmd)
	}
}

func (c *Context) evalArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.Errorf("arg: expected exactly one name, got %v", args)
	}
	name := args[0]
	value, ok := c.Args[name]
	if !ok {
		return "", errors.Errorf("arg: '%s' is not defined", name)
	}
	return value, nil
}

func (c *Context) evalEnv(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.Errorf("env: expected exactly one name, got %v", args)
	}
	name := args[0]
	value, ok := c.lookupEnv(name)
	if !ok {
		return "", errors.Errorf("env: environment variable '%s' is not set", name)
	}
	return value, nil
}

func (c *Context) evalOptenv(args []string) (string, error) {
	if len(args) < 1 {
		return "", errors.Errorf("optenv: expected at least a name")
	}
	name := args[0]
	if value, ok := c.lookupEnv(name); ok {
		return value, nil
	}
	return strings.Join(args[1:], " "), nil
}

func (c *Context) evalFind(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.Errorf("find: expected exactly one package name, got %v", args)
	}
	if c.Locator == nil {
		return "", errors.New("find: no package locator configured")
	}
	return c.Locator.Find(args[0])
}

func (c *Context) evalAnon(args []string) (string, error) {
	if len(args) != 1 {
		return "", errors.Errorf("anon: expected exactly one id, got %v", args)
	}
	if c.Anon == nil {
		return "", errors.New("anon: no anon-id memo configured")
	}
	return c.Anon.Get(args[0]), nil
}

func (c *Context) lookupEnv(name string) (string, bool) {
	if c.LookupEnv != nil {
		return c.LookupEnv(name)
	}
	return os.LookupEnv(name)
}

// sanitizeAnonID replaces the characters forbidden in a graph resource name
// with underscores.1's $(anon) shape.
func sanitizeAnonID(s string) string {
	r := strings.NewReplacer(".", "_", "-", "_", ":", "_")
	return r.Replace(s)
}
