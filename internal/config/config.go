// Package config loads the YAML daemon configuration. JSON config files from
// earlier deployments parse unchanged.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"
)

const (
	SourceSchedule = "schedule"
	SourceAPI      = "api"
)

var (
	// ErrDuplicateStart is returned when two applets, or two brightness
	// entries, start at the same time of day.
	ErrDuplicateStart = errors.New("duplicate start time")
	// ErrInvalidTime is returned for start times that are not hh:mm or are
	// out of range.
	ErrInvalidTime = errors.New("invalid time")
)

type Display struct {
	Rows       int  `yaml:"rows"`
	Cols       int  `yaml:"cols"`
	Serpentine bool `yaml:"serpentine"`
}

type SPI struct {
	Port     string  `yaml:"port"`      // e.g. /dev/spidev0.0, empty for the first port
	SpeedHz  int     `yaml:"speed_hz"`  // e.g. 2500000
	BudgetMA float64 `yaml:"budget_ma"` // supply budget, 0 = unlimited
	WhiteCap float64 `yaml:"white_cap"` // per-LED cap as a fraction of full white
}

type HTTP struct {
	Addr string `yaml:"addr"`
}

type Pixlet struct {
	Binary    string `yaml:"binary"`
	OutputDir string `yaml:"output_dir"`
}

type BrightnessEntry struct {
	StartTime string  `yaml:"start_time" json:"start_time"`
	Value     float64 `yaml:"value" json:"value"`
}

type Brightness struct {
	Source   string            `yaml:"source" json:"source"` // "schedule" | "api"
	Schedule []BrightnessEntry `yaml:"schedule,omitempty" json:"schedule,omitempty"`
}

type Applet struct {
	Name              string         `yaml:"name" json:"name"`
	Path              string         `yaml:"path" json:"path"`
	StartTime         string         `yaml:"start_time" json:"start_time"`
	Dynamic           bool           `yaml:"dynamic" json:"dynamic"`
	RefreshIntervalMs int            `yaml:"refresh_interval_ms" json:"refresh_interval_ms"`
	SchemaVals        map[string]any `yaml:"schema_vals,omitempty" json:"schema_vals,omitempty"`
}

type Config struct {
	Driver   string `yaml:"driver"` // "sim" | "spi" | "console"
	LogLevel string `yaml:"log_level,omitempty"`
	Database string `yaml:"database,omitempty"`

	Display Display `yaml:"display"`
	SPI     SPI     `yaml:"spi,omitempty"`
	HTTP    HTTP    `yaml:"http,omitempty"`
	Pixlet  Pixlet  `yaml:"pixlet,omitempty"`

	Brightness Brightness `yaml:"brightness"`
	Applets    []Applet   `yaml:"applets"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if c.Brightness.Source == "" && c.Brightness.Schedule == nil {
		// No brightness section: every applet shows at full brightness.
		c.Brightness = Brightness{Source: SourceSchedule, Schedule: []BrightnessEntry{}}
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Validate checks everything that would otherwise make the daemon pick a
// schedule entry arbitrarily or fail later at render time.
func (c *Config) Validate() error {
	if len(c.Applets) == 0 {
		return errors.New("no applets configured")
	}
	applets := map[int]string{}
	for _, a := range c.Applets {
		if a.Path == "" {
			return fmt.Errorf("applet %q: missing path", a.Name)
		}
		if _, err := os.Stat(a.Path); err != nil {
			return fmt.Errorf("applet %q: %w", a.Name, err)
		}
		if a.Dynamic && a.RefreshIntervalMs <= 0 {
			return fmt.Errorf("applet %q: dynamic applets need refresh_interval_ms > 0", a.Name)
		}
		secs, err := ParseClock(a.StartTime)
		if err != nil {
			return fmt.Errorf("applet %q: %w", a.Name, err)
		}
		if prev, ok := applets[secs]; ok {
			return fmt.Errorf("%w %s: applets %q and %q", ErrDuplicateStart, a.StartTime, prev, a.Name)
		}
		applets[secs] = a.Name
	}

	switch c.Brightness.Source {
	case SourceAPI:
	case SourceSchedule:
		if c.Brightness.Schedule == nil {
			return errors.New("brightness source set to schedule but no schedule provided")
		}
		entries := map[int]float64{}
		for _, e := range c.Brightness.Schedule {
			secs, err := ParseClock(e.StartTime)
			if err != nil {
				return fmt.Errorf("brightness: %w", err)
			}
			if e.Value < 0 || e.Value > 1 {
				return fmt.Errorf("brightness %s: value %v not in [0, 1]", e.StartTime, e.Value)
			}
			if prev, ok := entries[secs]; ok {
				return fmt.Errorf("%w %s: brightness %v and %v", ErrDuplicateStart, e.StartTime, prev, e.Value)
			}
			entries[secs] = e.Value
		}
	default:
		return fmt.Errorf("invalid brightness source %q: must be one of [%s %s]", c.Brightness.Source, SourceSchedule, SourceAPI)
	}
	return nil
}

var clockPattern = regexp.MustCompile(`(\d\d):(\d\d)`)

// ParseClock converts an "hh:mm" start time to seconds since midnight.
func ParseClock(s string) (int, error) {
	m := clockPattern.FindAllStringSubmatch(s, -1)
	if len(m) != 1 {
		return 0, fmt.Errorf("%w %q: start_time should match the pattern hh:mm", ErrInvalidTime, s)
	}
	hh, _ := strconv.Atoi(m[0][1])
	mm, _ := strconv.Atoi(m[0][2])
	if hh > 23 {
		return 0, fmt.Errorf("%w %q: hour %d should be between 0 and 23", ErrInvalidTime, s, hh)
	}
	if mm > 59 {
		return 0, fmt.Errorf("%w %q: minute %d should be between 0 and 59", ErrInvalidTime, s, mm)
	}
	return hh*3600 + mm*60, nil
}
