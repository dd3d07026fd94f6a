package metricconfig

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSectionKeepsFirstDeclarationOrder(t *testing.T) {
	s := NewSection()
	s.Set("b", "1")
	s.Set("a", "2")
	s.Set("b", "3")

	if diff := cmp.Diff([]string{"b", "a"}, s.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if v, _ := s.Get("b"); v != "3" {
		t.Errorf("expected overwritten value 3, got %q", v)
	}
}

func TestNilSection(t *testing.T) {
	var s *Section
	if _, ok := s.Get("x"); ok {
		t.Error("nil section should not contain keys")
	}
	if s.Len() != 0 || s.Keys() != nil {
		t.Error("nil section should be empty")
	}
}

func TestArgsString(t *testing.T) {
	tests := []struct {
		name     string
		args     *Section
		expected string
	}{
		{
			name:     "no args section",
			args:     NewSection(),
			expected: "",
		},
		{
			name:     "single pair",
			args:     SectionOf("verbose", "3"),
			expected: "--verbose 3",
		},
		{
			name:     "declaration order",
			args:     SectionOf("zeta", "1", "alpha", "2", "mid", "x y"),
			expected: "--zeta 1 --alpha 2 --mid x y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			cfg.Args = tt.args
			if got := cfg.ArgsString(); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestCheckValue(t *testing.T) {
	cfg := NewConfig()
	cfg.General.Set("enable-by-default", "True")

	tests := []struct {
		name          string
		key           string
		expected      string
		caseSensitive bool
		want          bool
	}{
		{"case folded match", "enable-by-default", "true", false, true},
		{"case sensitive mismatch", "enable-by-default", "true", true, false},
		{"case sensitive match", "enable-by-default", "True", true, true},
		{"different value", "enable-by-default", "false", false, false},
		{"absent key", "missing", "true", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cfg.CheckValue(General, tt.key, tt.expected, tt.caseSensitive); got != tt.want {
				t.Errorf("CheckValue(%q, %q, %v) = %v, want %v", tt.key, tt.expected, tt.caseSensitive, got, tt.want)
			}
		})
	}
}

func TestValueAbsent(t *testing.T) {
	cfg := NewConfig()
	if v, ok := cfg.Value(Args, "nope"); ok || v != "" {
		t.Errorf("expected absent key, got %q, %v", v, ok)
	}
}

func TestKindSectionName(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{General, "ping-host"},
		{Args, "ping-host args"},
		{Env, "ping-host env"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			if got := tt.kind.SectionName("ping-host"); got != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestINILoader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.conf")
	writeConf(t, path, `[m]
Service-Type = OSG-CE
url = http://example.org/#anchor
quoted = "keep"

[m env]
X509_CERT_DIR = SET | !!VDT_LOCATION!!/globus/TRUSTED_CA
`)

	f, err := INILoader{}.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := f.ForMetric("m")
	if v, ok := cfg.General.Get("Service-Type"); !ok || v != "OSG-CE" {
		t.Errorf("expected case-preserved key, got %q, %v", v, ok)
	}
	if v, _ := cfg.General.Get("url"); v != "http://example.org/#anchor" {
		t.Errorf("inline # should be kept, got %q", v)
	}
	if v, _ := cfg.General.Get("quoted"); v != `"keep"` {
		t.Errorf("quotes should be preserved, got %q", v)
	}
	if v, _ := cfg.Env.Get("X509_CERT_DIR"); v != "SET | !!VDT_LOCATION!!/globus/TRUSTED_CA" {
		t.Errorf("unexpected env value %q", v)
	}
}

func TestINILoaderTrailingBackslash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.conf")
	writeConf(t, path, "[m]\npath = C:\\tmp\\\nnext = x\n")

	f, err := INILoader{}.Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := f.ForMetric("m")
	if v, _ := cfg.General.Get("path"); v != `C:\tmp\` {
		t.Errorf("expected trailing backslash kept, got %q", v)
	}
	if v, ok := cfg.General.Get("next"); !ok || v != "x" {
		t.Errorf("expected next = x on its own line, got %q, %v", v, ok)
	}
}

func TestINILoaderMissingFile(t *testing.T) {
	_, err := INILoader{}.Load(filepath.Join(t.TempDir(), "missing.conf"))
	if !errors.Is(err, ErrConfigFileMissing) {
		t.Fatalf("expected ErrConfigFileMissing, got %v", err)
	}
}
