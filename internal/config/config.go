// Package config loads the optional medgraph.hcl file.
//
//	corpus {
//	  root     = "content"
//	  include  = ["**/*.json", "**/*.yaml"]
//	  exclude  = ["**/drafts/**"]
//	  selector = "$.records[*]"
//	}
//
//	validate {
//	  fail_on   = "error"
//	  asymmetry = "warning"
//	}
//
//	server {
//	  addr     = ":8080"
//	  watch    = true
//	  debounce = "500ms"
//	}
//
//	log {
//	  mode = "production"
//	}
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "medgraph.hcl"

type Config struct {
	Corpus   *Corpus   `hcl:"corpus,block"`
	Validate *Validate `hcl:"validate,block"`
	Server   *Server   `hcl:"server,block"`
	Log      *Log      `hcl:"log,block"`
}

type Corpus struct {
	Root     string   `hcl:"root,optional"`
	Include  []string `hcl:"include,optional"`
	Exclude  []string `hcl:"exclude,optional"`
	Selector string   `hcl:"selector,optional"`
}

// Validate assigns a severity (info, warning, error) to each finding kind
// and sets the threshold at which validate-corpus fails.
type Validate struct {
	FailOn    string `hcl:"fail_on,optional"`
	Strict    bool   `hcl:"strict,optional"`
	Dangling  string `hcl:"dangling,optional"`
	Cycle     string `hcl:"cycle,optional"`
	Asymmetry string `hcl:"asymmetry,optional"`
	Orphan    string `hcl:"orphan,optional"`
}

type Server struct {
	Addr        string `hcl:"addr,optional"`
	Watch       bool   `hcl:"watch,optional"`
	Debounce    string `hcl:"debounce,optional"`
	ControlFile string `hcl:"control_file,optional"`
}

type Log struct {
	Mode string `hcl:"mode,optional"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Corpus: &Corpus{
			Root:     ".",
			Include:  []string{"**/*.json", "**/*.yaml", "**/*.yml", "**/*.db"},
			Selector: "$",
		},
		Validate: &Validate{
			FailOn:    "error",
			Dangling:  "error",
			Cycle:     "error",
			Asymmetry: "warning",
			Orphan:    "info",
		},
		Server: &Server{
			Addr:     "127.0.0.1:8080",
			Debounce: "500ms",
		},
		Log: &Log{Mode: "development"},
	}
}

// Load reads path. An empty path means DefaultFile, which may be absent; an
// explicit path must exist. Values missing from the file keep their defaults.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Parse(path, src)
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(filename string, src []byte) (*Config, error) {
	var file Config
	if err := hclsimple.Decode(filename, src, nil, &file); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg := Default()
	cfg.merge(&file)
	if err := cfg.check(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return cfg, nil
}

func (c *Config) merge(f *Config) {
	if f.Corpus != nil {
		setString(&c.Corpus.Root, f.Corpus.Root)
		setString(&c.Corpus.Selector, f.Corpus.Selector)
		if len(f.Corpus.Include) > 0 {
			c.Corpus.Include = f.Corpus.Include
		}
		if len(f.Corpus.Exclude) > 0 {
			c.Corpus.Exclude = f.Corpus.Exclude
		}
	}
	if f.Validate != nil {
		setString(&c.Validate.FailOn, f.Validate.FailOn)
		setString(&c.Validate.Dangling, f.Validate.Dangling)
		setString(&c.Validate.Cycle, f.Validate.Cycle)
		setString(&c.Validate.Asymmetry, f.Validate.Asymmetry)
		setString(&c.Validate.Orphan, f.Validate.Orphan)
		c.Validate.Strict = c.Validate.Strict || f.Validate.Strict
	}
	if f.Server != nil {
		setString(&c.Server.Addr, f.Server.Addr)
		setString(&c.Server.Debounce, f.Server.Debounce)
		setString(&c.Server.ControlFile, f.Server.ControlFile)
		c.Server.Watch = c.Server.Watch || f.Server.Watch
	}
	if f.Log != nil {
		setString(&c.Log.Mode, f.Log.Mode)
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

var severities = map[string]bool{"info": true, "warning": true, "error": true}

func (c *Config) check() error {
	for name, v := range map[string]string{
		"validate.fail_on":   c.Validate.FailOn,
		"validate.dangling":  c.Validate.Dangling,
		"validate.cycle":     c.Validate.Cycle,
		"validate.asymmetry": c.Validate.Asymmetry,
		"validate.orphan":    c.Validate.Orphan,
	} {
		if !severities[v] {
			return fmt.Errorf("%s: %q is not one of info, warning, error", name, v)
		}
	}
	if _, err := c.DebounceDuration(); err != nil {
		return err
	}
	return nil
}

// DebounceDuration parses server.debounce.
func (c *Config) DebounceDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Server.Debounce)
	if err != nil {
		return 0, fmt.Errorf("server.debounce: %w", err)
	}
	if d < 0 {
		return 0, fmt.Errorf("server.debounce: %s is negative", d)
	}
	return d, nil
}
