package cliflags

import "testing"

func TestParseSplitsFilesAndBindings(t *testing.T) {
	opts, err := Parse([]string{"a.launch", "b.launch", "rate:=10", "__hostname:=robot1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(opts.Files) != 2 || opts.Files[0] != "a.launch" || opts.Files[1] != "b.launch" {
		t.Errorf("got files %v", opts.Files)
	}
	if opts.LaunchArgs["rate"] != "10" {
		t.Errorf("expected rate:=10 to land in LaunchArgs, got %v", opts.LaunchArgs)
	}
	if opts.SpecialArgs["__hostname"] != "robot1" {
		t.Errorf("expected __hostname to land in SpecialArgs, got %v", opts.SpecialArgs)
	}
}

func TestParseFlags(t *testing.T) {
	opts, err := Parse([]string{"--port", "12345", "-w", "5", "--core"})
	if err != nil {
		t.Fatal(err)
	}
	if opts.Port != 12345 {
		t.Errorf("got port %d", opts.Port)
	}
	if opts.NumWorkers != 5 {
		t.Errorf("got numworkers %d", opts.NumWorkers)
	}
	if !opts.Core {
		t.Error("expected --core to be set")
	}
}

func TestValidateRejectsConflictingRequestModes(t *testing.T) {
	opts, err := Parse([]string{"--nodes", "--dump-params", "a.launch"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err == nil {
		t.Error("expected --nodes and --dump-params together to be rejected")
	}
}

func TestValidateRejectsWaitAndCoreTogether(t *testing.T) {
	opts, err := Parse([]string{"--wait", "--core"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err == nil {
		t.Error("expected --wait and --core together to be rejected")
	}
}

func TestValidateChildRequiresServerURIAndRunID(t *testing.T) {
	opts, err := Parse([]string{"--child", "robot1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err == nil {
		t.Error("expected --child without --server_uri/--run_id to be rejected")
	}

	opts, err = Parse([]string{"--child", "robot1", "-u", "http://parent:1234/", "--run_id", "abc"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err != nil {
		t.Errorf("expected fully specified --child to be accepted, got %v", err)
	}
}

func TestValidateChildForbidsPortAndFiles(t *testing.T) {
	opts, err := Parse([]string{"--child", "robot1", "-u", "http://parent:1234/", "--run_id", "abc", "--port", "1"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err == nil {
		t.Error("expected --child with --port to be rejected")
	}
}

func TestValidateCoreForbidsLaunchFiles(t *testing.T) {
	opts, err := Parse([]string{"--core", "a.launch"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err == nil {
		t.Error("expected --core with a launch file to be rejected")
	}
}

func TestValidateAcceptsPlainLaunch(t *testing.T) {
	opts, err := Parse([]string{"a.launch", "rate:=10"})
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(opts); err != nil {
		t.Errorf("expected a plain launch invocation to validate, got %v", err)
	}
}
