package tags

import (
	"strings"

	"github.com/pkg/errors"
)

// Test is <test pkg="..." type="..." test-name="..." .../>. It shares
// <node>'s child grammar (env/remap/param/rosparam) but is never respawned;
// `retry`/`time-limit` feed a deadline a future test-runner binary enforces.
type Test struct {
	Pkg       string
	Type      string
	TestName  string
	Namespace string
	Args      string
	Retry     int
	TimeLimit float64
	HasTimeLimit bool
	CWD       string
}

var testKnownAttrs = withGating(
	"pkg", "type", "test-name", "ns", "args", "retry", "time-limit", "cwd",
)

func ParseTest(file string, attrs Attrs) (*Test, []Warning, error) {
	warnings := checkUnknown(file, "test", attrs, testKnownAttrs)

	pkg, err := requireNonEmpty(attrs, "pkg", "test")
	if err != nil {
		return nil, warnings, err
	}
	typ, err := requireNonEmpty(attrs, "type", "test")
	if err != nil {
		return nil, warnings, err
	}
	testName, err := requireNonEmpty(attrs, "test-name", "test")
	if err != nil {
		return nil, warnings, err
	}
	if strings.Contains(testName, "/") {
		return nil, warnings, errors.Errorf("<test test-name=%q>: name may not contain a slash", testName)
	}

	retry := 0
	if v, ok := attrs["retry"]; ok {
		r, rerr := parseIntAttr(v)
		if rerr != nil {
			return nil, warnings, errors.Wrapf(rerr, "<test test-name=%q retry=...>", testName)
		}
		retry = r
	}

	var timeLimit float64
	hasTimeLimit := false
	if v, ok := attrs["time-limit"]; ok {
		f, ferr := parseFloatAttr(v)
		if ferr != nil {
			return nil, warnings, errors.Wrapf(ferr, "<test test-name=%q time-limit=...>", testName)
		}
		timeLimit, hasTimeLimit = f, true
	}

	return &Test{
		Pkg:          pkg,
		Type:         typ,
		TestName:     testName,
		Namespace:    attrs["ns"],
		Args:         attrs["args"],
		Retry:        retry,
		TimeLimit:    timeLimit,
		HasTimeLimit: hasTimeLimit,
		CWD:          attrs["cwd"],
	}, warnings, nil
}
