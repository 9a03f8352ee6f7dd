package policy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"

	"gfimx/internal/fault"
)

// Policy is the top-level monitoring document.
type Policy struct {
	Watch    *Watch              `toml:"watch"`
	Schedule map[string]Schedule `toml:"schedule"`
}

// Watch lists directories monitored for filesystem events.
type Watch struct {
	Dirs        []string `toml:"dirs"`
	IgnoreFiles *Ignore  `toml:"ignore_files"`
	IgnoreDirs  *Ignore  `toml:"ignore_dirs"`
}

// Schedule lists directories scanned periodically. Interval and Cron are
// mutually exclusive.
type Schedule struct {
	Dirs        []string `toml:"dirs"`
	IgnoreFiles *Ignore  `toml:"ignore_files"`
	IgnoreDirs  *Ignore  `toml:"ignore_dirs"`
	Interval    *uint32  `toml:"interval"`
	Cron        *string  `toml:"cron"`
}

// Ignore holds regular expressions and literal path prefixes to skip.
type Ignore struct {
	Patterns []string `toml:"patterns"`
	Paths    []string `toml:"paths"`
}

// Parse decodes and validates a policy document.
func Parse(text string) (*Policy, error) {
	var pol Policy
	decoder := toml.NewDecoder(bytes.NewReader([]byte(text)))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&pol); err != nil {
		return nil, fault.Wrap(fault.ErrPolicy, "policy", "parse", "", err)
	}
	if err := pol.Validate(); err != nil {
		return nil, err
	}
	return &pol, nil
}

// LoadFile reads and parses a policy from disk.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPolicy, "policy", "read", path, err)
	}
	return Parse(string(data))
}

// Validate checks structural rules that TOML decoding cannot express.
func (p *Policy) Validate() error {
	if p == nil {
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", "empty policy", nil)
	}
	if p.Watch == nil && len(p.Schedule) == 0 {
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", "policy defines neither watch nor schedule", nil)
	}
	if p.Watch != nil {
		if err := validateSection("watch", p.Watch.Dirs, p.Watch.IgnoreFiles, p.Watch.IgnoreDirs); err != nil {
			return err
		}
	}
	for _, name := range p.ScheduleNames() {
		sched := p.Schedule[name]
		section := "schedule." + name
		if err := validateSection(section, sched.Dirs, sched.IgnoreFiles, sched.IgnoreDirs); err != nil {
			return err
		}
		if err := sched.validateTiming(section); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleNames returns schedule names in sorted order.
func (p *Policy) ScheduleNames() []string {
	names := make([]string, 0, len(p.Schedule))
	for name := range p.Schedule {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s Schedule) validateTiming(section string) error {
	switch {
	case s.Interval != nil && s.Cron != nil:
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": interval and cron are mutually exclusive", nil)
	case s.Interval == nil && s.Cron == nil:
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": one of interval or cron is required", nil)
	case s.Interval != nil && *s.Interval == 0:
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": interval must be positive", nil)
	case s.Cron != nil:
		if _, err := cron.ParseStandard(strings.TrimSpace(*s.Cron)); err != nil {
			return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": invalid cron expression", err)
		}
	}
	return nil
}

func validateSection(section string, dirs []string, files, directories *Ignore) error {
	if len(dirs) == 0 {
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": at least one dir is required", nil)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+": empty dir entry", nil)
		}
	}
	if _, err := files.Compile(); err != nil {
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+".ignore_files", err)
	}
	if _, err := directories.Compile(); err != nil {
		return fault.Wrap(fault.ErrPolicy, "policy", "validate", section+".ignore_dirs", err)
	}
	return nil
}

// Client maps an agent name to its policy file in a policy directory.
type Client struct {
	Policy string `toml:"policy"`
}

// LoadClients reads <dir>/clients.toml, a table of client name to policy
// file name.
func LoadClients(dir string) (map[string]Client, error) {
	path := filepath.Join(dir, "clients.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Wrap(fault.ErrPolicy, "policy", "load clients", path, err)
	}
	clients := map[string]Client{}
	if err := toml.Unmarshal(data, &clients); err != nil {
		return nil, fault.Wrap(fault.ErrPolicy, "policy", "parse clients", path, err)
	}
	for name, client := range clients {
		if strings.TrimSpace(client.Policy) == "" {
			return nil, fault.Wrap(fault.ErrPolicy, "policy", "parse clients", fmt.Sprintf("client %q has no policy file", name), nil)
		}
	}
	if len(clients) == 0 {
		return nil, fault.Wrap(fault.ErrPolicy, "policy", "parse clients", path, errors.New("no clients defined"))
	}
	return clients, nil
}
