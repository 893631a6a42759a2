package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/vango-dev/nettables/pkg/nttest"
	"github.com/vango-dev/nettables/pkg/protocol"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(&globalFlags{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestClientSetAndGet(t *testing.T) {
	h := nttest.NewServer().
		WithEntry("/SmartDashboard/name", "robot").
		Start(t)

	if _, err := runCLI(t, "client", "set", "/arm/angles", "10,20", "--type", "DoubleArray", "--persistent", "--server", h.Addr); err != nil {
		t.Fatalf("set: %v", err)
	}
	nttest.ExpectValue(t, h.Store, "/arm/angles", []float64{10, 20})
	if e, _ := h.Store.Get("/arm/angles"); !e.Flags.Has(protocol.FlagPersistent) {
		t.Error("persistent flag not set")
	}

	out, err := runCLI(t, "client", "get", "/SmartDashboard/", "--server", h.Addr)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !strings.Contains(out, `/SmartDashboard/name (String) = "robot"`) {
		t.Errorf("get output = %q", out)
	}
	if strings.Contains(out, "/arm/angles") {
		t.Errorf("prefix filter ignored: %q", out)
	}
}

func TestClientSetTypeMismatch(t *testing.T) {
	h := nttest.NewServer().WithEntry("/x", "text").Start(t)

	_, err := runCLI(t, "client", "set", "/x", "5", "--server", h.Addr)
	if err == nil {
		t.Fatal("expected a type mismatch")
	}
	if got := (&globalFlags{}).describe(err); !strings.Contains(got.Error(), "NT201") {
		t.Errorf("describe = %v, want NT201", got)
	}
}

func TestClientConnectRefused(t *testing.T) {
	_, err := runCLI(t, "client", "get", "--server", nttest.FreeAddr(t))
	if err == nil {
		t.Fatal("expected a dial error")
	}
	if got := (&globalFlags{}).describe(err); !strings.Contains(got.Error(), "NT101") {
		t.Errorf("describe = %v, want NT101", got)
	}
}
