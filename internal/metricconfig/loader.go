package metricconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/ini.v1"
)

// ErrConfigFileMissing is returned when a configuration file does not exist.
var ErrConfigFileMissing = errors.New("config file missing")

// File is a parsed configuration file: section name to ordered key/value pairs.
type File struct {
	Path     string
	sections map[string]*Section
}

// Section returns the named section, or nil.
func (f *File) Section(name string) *Section {
	if f == nil {
		return nil
	}
	return f.sections[name]
}

// ForMetric extracts the sections belonging to metric.
func (f *File) ForMetric(metric string) *Config {
	cfg := NewConfig()
	cfg.General.Merge(f.Section(General.SectionName(metric)))
	cfg.Args.Merge(f.Section(Args.SectionName(metric)))
	cfg.Env.Merge(f.Section(Env.SectionName(metric)))
	return cfg
}

// Loader reads a configuration file.
type Loader interface {
	Load(path string) (*File, error)
}

// INILoader parses configuration files in INI syntax.
type INILoader struct{}

var iniOptions = ini.LoadOptions{
	IgnoreInlineComment:        true,
	PreserveSurroundedQuote:    true,
	AllowPythonMultilineValues: true,
	IgnoreContinuation:         true,
}

// Load parses the file at path. A missing file yields ErrConfigFileMissing.
func (INILoader) Load(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrConfigFileMissing, path)
		}
		return nil, fmt.Errorf("stat config file: %w", err)
	}

	raw, err := ini.LoadSources(iniOptions, path)
	if err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}

	f := &File{Path: path, sections: make(map[string]*Section)}
	for _, sec := range raw.Sections() {
		if sec.Name() == ini.DefaultSection {
			continue
		}
		s := NewSection()
		for _, key := range sec.Keys() {
			s.Set(key.Name(), key.Value())
		}
		f.sections[sec.Name()] = s
	}
	return f, nil
}
