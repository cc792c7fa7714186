package opsboard

import (
	"bytes"
	"testing"
)

func TestOptions(t *testing.T) {
	b := &Board{}

	WithConfigFile("/etc/opsboard.toml")(b)
	if b.cfgPath != "/etc/opsboard.toml" {
		t.Errorf("cfgPath = %q, want %q", b.cfgPath, "/etc/opsboard.toml")
	}

	cfg := DefaultConfig()
	WithConfig(cfg)(b)
	if b.cfg != cfg {
		t.Error("cfg should be set")
	}

	WithEcho(true)(b)
	if !b.echoMode {
		t.Error("echoMode should be true")
	}

	var buf bytes.Buffer
	WithEchoWriter(&buf)(b)
	if b.echoWriter != &buf {
		t.Error("echoWriter should be set")
	}

	WithRunOnce(true)(b)
	if !b.runOnce {
		t.Error("runOnce should be true")
	}

	logger, lv := NewLogger("info")
	WithLogger(logger)(b)
	if b.logger != logger {
		t.Error("logger should be set")
	}
	WithLevelVar(lv)(b)
	if b.levelVar != lv {
		t.Error("levelVar should be set")
	}

	WithSink(&mockSink{name: "test"})(b)
	if len(b.sinks) != 1 {
		t.Errorf("sinks count = %d, want 1", len(b.sinks))
	}

	reloadFn := func(path string) (*Config, error) { return nil, nil }
	WithReloadFunc(reloadFn)(b)
	if b.reloadFn == nil {
		t.Error("reloadFn should be set")
	}
}
