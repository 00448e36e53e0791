package substitution

import (
	"strings"
	"testing"

	"github.com/go-roslaunch/roslaunch/internal/pkgpath"
)

func newTestContext(args map[string]string) *Context {
	ctx := NewContext(args, pkgpath.NewLocator(""), NewAnonMemo())
	ctx.LookupEnv = func(name string) (string, bool) {
		switch name {
		case "SET_VAR":
			return "hello", true
		default:
			return "", false
		}
	}
	return ctx
}

func TestExpandArg(t *testing.T) {
	ctx := newTestContext(map[string]string{"a": "x"})
	got, err := ctx.Expand("$(arg a)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "x" {
		t.Errorf("got %q", got)
	}
}

func TestExpandArgMissing(t *testing.T) {
	ctx := newTestContext(nil)
	if _, err := ctx.Expand("$(arg missing)"); err == nil {
		t.Fatal("expected error for undefined arg")
	}
}

func TestExpandEnv(t *testing.T) {
	ctx := newTestContext(nil)
	got, err := ctx.Expand("$(env SET_VAR)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpandEnvMissing(t *testing.T) {
	ctx := newTestContext(nil)
	if _, err := ctx.Expand("$(env NOT_SET)"); err == nil {
		t.Fatal("expected error for unset env var")
	}
}

func TestExpandOptenvPresent(t *testing.T) {
	ctx := newTestContext(nil)
	got, err := ctx.Expand("$(optenv SET_VAR fallback words)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Errorf("got %q", got)
	}
}

func TestExpandOptenvFallback(t *testing.T) {
	ctx := newTestContext(nil)
	got, err := ctx.Expand("$(optenv NOT_SET fallback words)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "fallback words" {
		t.Errorf("got %q", got)
	}

	got, err = ctx.Expand("$(optenv NOT_SET)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("got %q", got)
	}
}

func TestExpandFixedPoint(t *testing.T) {
	// : value="$(arg a)" where arg a resolves to
	// "$(arg b)" and arg b = "42" should fully resolve to "42".
	ctx := newTestContext(map[string]string{"a": "$(arg b)", "b": "42"})
	got, err := ctx.Expand("$(arg a)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "42" {
		t.Errorf("got %q", got)
	}
}

func TestExpandCycleDetected(t *testing.T) {
	ctx := newTestContext(map[string]string{"a": "$(arg b)", "b": "$(arg a)"})
	if _, err := ctx.Expand("$(arg a)"); err == nil {
		t.Fatal("expected cycle error")
	}
}

func TestExpandLeftToRight(t *testing.T) {
	ctx := newTestContext(map[string]string{"a": "1", "b": "2"})
	got, err := ctx.Expand("$(arg a)-$(arg b)")
	if err != nil {
		t.Fatal(err)
	}
	if got != "1-2" {
		t.Errorf("got %q", got)
	}
}

func TestExpandNoSubstitution(t *testing.T) {
	ctx := newTestContext(nil)
	got, err := ctx.Expand("plain text")
	if err != nil {
		t.Fatal(err)
	}
	if got != "plain text" {
		t.Errorf("got %q", got)
	}
}

func TestAnonMemoization(t *testing.T) {
	memo := NewAnonMemo()
	first := memo.Get("x")
	second := memo.Get("x")
	if first != second {
		t.Errorf("expected memoized anon id, got %q then %q", first, second)
	}
	third := memo.Get("y")
	if third == first {
		t.Errorf("expected distinct anon ids for distinct keys")
	}
}

func TestAnonSanitizesSpecialChars(t *testing.T) {
	memo := NewAnonMemo()
	id := memo.Get("id")
	for _, forbidden := range []string{".", "-", ":"} {
		if strings.Contains(id, forbidden) {
			t.Errorf("anon id %q should not contain %q", id, forbidden)
		}
	}
}
