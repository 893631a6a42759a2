package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"

	"github.com/vango-dev/nettables/internal/config"
	nterrors "github.com/vango-dev/nettables/internal/errors"
	"github.com/vango-dev/nettables/pkg/protocol"
	"github.com/vango-dev/nettables/pkg/store"
)

func TestParseValue(t *testing.T) {
	tests := []struct {
		typ  string
		arg  string
		want protocol.Value
	}{
		{"", "true", protocol.BooleanValue(true)},
		{"", "1.5", protocol.DoubleValue(1.5)},
		{"", "robot", protocol.StringValue("robot")},
		{"", "1", protocol.DoubleValue(1)},
		{"string", "1", protocol.StringValue("1")},
		{"Boolean", "0", protocol.BooleanValue(false)},
		{"raw", "00ff", protocol.RawValue([]byte{0x00, 0xff})},
		{"rpc", "01", protocol.RPCValue([]byte{0x01})},
		{"BooleanArray", "true, false", protocol.BooleanArrayValue([]bool{true, false})},
		{"DoubleArray", "10,20,30", protocol.DoubleArrayValue([]float64{10, 20, 30})},
		{"StringArray", "a, b", protocol.StringArrayValue([]string{"a", "b"})},
		{"StringArray", "", protocol.StringArrayValue([]string{})},
	}

	for _, tt := range tests {
		t.Run(tt.typ+"/"+tt.arg, func(t *testing.T) {
			got, err := parseValue(tt.typ, tt.arg)
			if err != nil {
				t.Fatalf("parseValue(%q, %q) error = %v", tt.typ, tt.arg, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("parseValue(%q, %q) = %v, want %v", tt.typ, tt.arg, got, tt.want)
			}
		})
	}
}

func TestParseValueErrors(t *testing.T) {
	tests := []struct{ typ, arg string }{
		{"Double", "fast"},
		{"Raw", "zz"},
		{"DoubleArray", "1,x"},
		{"Integer", "1"},
	}
	for _, tt := range tests {
		if _, err := parseValue(tt.typ, tt.arg); err == nil {
			t.Errorf("parseValue(%q, %q) should fail", tt.typ, tt.arg)
		}
	}
}

func TestGlobalFlagsLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.toml")
	content := "identity = \"from-file\"\n[log]\nlevel = \"warn\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	g := &globalFlags{configPath: path, logFormat: "json"}
	cfg, err := g.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity != "from-file" || cfg.Log.Level != "warn" || cfg.Log.Format != "json" {
		t.Errorf("cfg = %+v", cfg)
	}

	g.identity = "from-flag"
	cfg, err = g.load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Identity != "from-flag" {
		t.Errorf("Identity = %q, want flag to win", cfg.Identity)
	}
}

func TestVersionShort(t *testing.T) {
	root := newRootCmd(&globalFlags{})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--short"})
	if err := root.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if strings.TrimSpace(out.String()) != version {
		t.Errorf("output = %q, want %q", out.String(), version)
	}
}

func TestDeleteViaAdmin(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		if r.URL.Path == "/entries/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer ts.Close()

	if err := deleteViaAdmin(context.Background(), ts.URL+"/", "/SmartDashboard/speed"); err != nil {
		t.Fatalf("deleteViaAdmin: %v", err)
	}
	if gotPath != "/entries/SmartDashboard/speed" {
		t.Errorf("path = %q", gotPath)
	}

	err := deleteViaAdmin(context.Background(), ts.URL, "/missing")
	if err == nil || !strings.Contains(err.Error(), store.ErrNotFound.Error()) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestPrintEntry(t *testing.T) {
	var buf bytes.Buffer
	printEntry(&buf, "update", store.Entry{
		Name:  "/x",
		Value: protocol.DoubleValue(2),
		Flags: protocol.FlagPersistent,
	})
	want := "update /x (Double) = 2 [persistent]\n"
	if buf.String() != want {
		t.Errorf("printEntry = %q, want %q", buf.String(), want)
	}
}

func TestDescribe(t *testing.T) {
	g := &globalFlags{}

	tests := []struct {
		name string
		err  error
		code string
	}{
		{"config missing", fmt.Errorf("%w: x.toml", config.ErrNotFound), "NT001"},
		{"config invalid", fmt.Errorf("%w: log.level", config.ErrInvalid), "NT003"},
		{"refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, "NT101"},
		{"in use", &net.OpError{Op: "listen", Net: "tcp", Err: syscall.EADDRINUSE}, "NT104"},
		{"timeout", fmt.Errorf("waiting: %w", context.DeadlineExceeded), "NT103"},
		{"type", fmt.Errorf("%w: /x", store.ErrTypeMismatch), "NT201"},
		{"value", fmt.Errorf("element 0: %w", strconv.ErrSyntax), "NT202"},
		{"not found", store.ErrNotFound, "NT203"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ne *nterrors.Error
			if !errors.As(g.describe(tt.err), &ne) {
				t.Fatalf("describe(%v) is not coded", tt.err)
			}
			if ne.Code != tt.code {
				t.Errorf("code = %s, want %s", ne.Code, tt.code)
			}
			if !errors.Is(ne, tt.err) && ne.Wrapped != tt.err {
				t.Errorf("cause lost: %v", ne.Wrapped)
			}
		})
	}

	plain := errors.New("something else")
	if g.describe(plain) != plain {
		t.Error("unknown errors should pass through")
	}
	if g.describe(nil) != nil {
		t.Error("describe(nil) should be nil")
	}
}
