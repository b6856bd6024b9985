package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings holds every tunable the scheduling engine reads. It is built once
// at startup and passed by value into the resolver, assembler, and planner so
// tests can supply deterministic configurations.
type Settings struct {
	// RefreshDuration is the mandatory break emitted at the start of each
	// travel day.
	RefreshDuration time.Duration `yaml:"refresh_duration"`

	// SpeedsKmph maps travel class (local, outstation, walking) to the
	// assumed average speed.
	SpeedsKmph map[string]float64 `yaml:"speeds_kmph"`

	// Buffers maps travel mode (road, rail, flight) to the buffer added on
	// top of computed travel time.
	Buffers map[string]time.Duration `yaml:"buffers"`

	// DefaultSegmentStart / DefaultSegmentEnd are applied when a route
	// segment carries no explicit operating window.
	DefaultSegmentStart string `yaml:"default_segment_start"`
	DefaultSegmentEnd   string `yaml:"default_segment_end"`

	// DefaultVisitDuration is used when a hotspot has no visit duration set.
	DefaultVisitDuration time.Duration `yaml:"default_visit_duration"`

	// MaxWait caps how long the assembler will idle in front of a hotspot
	// that has not opened yet before deferring it.
	MaxWait time.Duration `yaml:"max_wait"`

	// SourceCandidateLimit caps how many source-city hotspots a non-direct
	// segment will consider.
	SourceCandidateLimit int `yaml:"source_candidate_limit"`

	// RebuildTimeout bounds a full-trip recomputation.
	RebuildTimeout time.Duration `yaml:"rebuild_timeout"`
}

// Speed constants match the legacy reference data; walking was added for the
// new travel class.
const (
	defaultLocalSpeedKmph      = 40
	defaultOutstationSpeedKmph = 60
	defaultWalkingSpeedKmph    = 5
)

// Default returns the settings the legacy system shipped with.
func Default() Settings {
	return Settings{
		RefreshDuration: time.Hour,
		SpeedsKmph: map[string]float64{
			"local":      defaultLocalSpeedKmph,
			"outstation": defaultOutstationSpeedKmph,
			"walking":    defaultWalkingSpeedKmph,
		},
		Buffers: map[string]time.Duration{
			"road":   0,
			"rail":   30 * time.Minute,
			"flight": 2 * time.Hour,
		},
		DefaultSegmentStart:  "09:00:00",
		DefaultSegmentEnd:    "20:00:00",
		DefaultVisitDuration: time.Hour,
		MaxWait:              30 * time.Minute,
		SourceCandidateLimit: 3,
		RebuildTimeout:       2 * time.Minute,
	}
}

// Load reads settings from a YAML file, filling any field the file omits with
// its default. A missing file is not an error: defaults are returned as-is.
func Load(path string) (Settings, error) {
	s := Default()

	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("reading settings file %s: %w", path, err)
	}

	var file fileSettings
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Settings{}, fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	file.apply(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("validating settings file %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the engine cannot schedule with.
func (s Settings) Validate() error {
	if s.RefreshDuration < 0 {
		return fmt.Errorf("refresh_duration must not be negative, got %s", s.RefreshDuration)
	}
	for class, speed := range s.SpeedsKmph {
		if speed <= 0 {
			return fmt.Errorf("speed for travel class %q must be positive, got %v", class, speed)
		}
	}
	for mode, buffer := range s.Buffers {
		if buffer < 0 {
			return fmt.Errorf("buffer for travel mode %q must not be negative, got %s", mode, buffer)
		}
	}
	if s.DefaultVisitDuration <= 0 {
		return fmt.Errorf("default_visit_duration must be positive, got %s", s.DefaultVisitDuration)
	}
	if s.MaxWait < 0 {
		return fmt.Errorf("max_wait must not be negative, got %s", s.MaxWait)
	}
	if s.SourceCandidateLimit < 0 {
		return fmt.Errorf("source_candidate_limit must not be negative, got %d", s.SourceCandidateLimit)
	}
	if s.RebuildTimeout <= 0 {
		return fmt.Errorf("rebuild_timeout must be positive, got %s", s.RebuildTimeout)
	}
	return nil
}

// fileSettings mirrors Settings with pointer fields so a file can override a
// subset without zeroing the rest. Durations are Go duration strings ("1h30m").
type fileSettings struct {
	RefreshDuration      *duration           `yaml:"refresh_duration"`
	SpeedsKmph           map[string]float64  `yaml:"speeds_kmph"`
	Buffers              map[string]duration `yaml:"buffers"`
	DefaultSegmentStart  *string             `yaml:"default_segment_start"`
	DefaultSegmentEnd    *string             `yaml:"default_segment_end"`
	DefaultVisitDuration *duration           `yaml:"default_visit_duration"`
	MaxWait              *duration           `yaml:"max_wait"`
	SourceCandidateLimit *int                `yaml:"source_candidate_limit"`
	RebuildTimeout       *duration           `yaml:"rebuild_timeout"`
}

func (f fileSettings) apply(s *Settings) {
	if f.RefreshDuration != nil {
		s.RefreshDuration = time.Duration(*f.RefreshDuration)
	}
	for class, speed := range f.SpeedsKmph {
		s.SpeedsKmph[class] = speed
	}
	for mode, buffer := range f.Buffers {
		s.Buffers[mode] = time.Duration(buffer)
	}
	if f.DefaultSegmentStart != nil {
		s.DefaultSegmentStart = *f.DefaultSegmentStart
	}
	if f.DefaultSegmentEnd != nil {
		s.DefaultSegmentEnd = *f.DefaultSegmentEnd
	}
	if f.DefaultVisitDuration != nil {
		s.DefaultVisitDuration = time.Duration(*f.DefaultVisitDuration)
	}
	if f.MaxWait != nil {
		s.MaxWait = time.Duration(*f.MaxWait)
	}
	if f.SourceCandidateLimit != nil {
		s.SourceCandidateLimit = *f.SourceCandidateLimit
	}
	if f.RebuildTimeout != nil {
		s.RebuildTimeout = time.Duration(*f.RebuildTimeout)
	}
}

// duration parses YAML scalar durations ("45m", "1h30m").
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = duration(parsed)
	return nil
}
