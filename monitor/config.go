// Package monitor orchestrates monitoring cycles: fetch → normalize →
// detect → persist → notify, one bounded cycle per site per tick.
package monitor

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/pagewatch/safeurl"
)

// ErrInvalidSite is returned when a configured site fails validation.
var ErrInvalidSite = errors.New("monitor: invalid site")

// Duration wraps time.Duration so YAML configs can say "30m" or "1h".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// MarshalJSON renders the duration as a string ("30m") for API responses.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts the same string form.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) String() string { return time.Duration(d).String() }

// ErrDuplicateSite is returned when two sites normalize to the same target.
var ErrDuplicateSite = errors.New("monitor: duplicate site")

// Site is one monitored target: a URL, optionally scoped to a CSS selector.
type Site struct {
	ID       string   `yaml:"-" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	URL      string   `yaml:"url" json:"url"`
	Selector string   `yaml:"selector,omitempty" json:"selector,omitempty"`
	Interval Duration `yaml:"interval,omitempty" json:"interval,omitempty"`
	// Per-site threshold overrides. 0 inherits the global default.
	MinAddedChars     int `yaml:"min_added_chars,omitempty" json:"min_added_chars,omitempty"`
	MinAddedSentences int `yaml:"min_added_sentences,omitempty" json:"min_added_sentences,omitempty"`
}

// key identifies the site's snapshot row and its writer lock.
func (s *Site) key() string {
	return s.URL + "\x00" + s.Selector
}

// Config is the pagewatch service configuration, loaded from YAML.
type Config struct {
	DataDir string `yaml:"data_dir"`
	// ExtractMode selects the normalizer backend: "dom" or "article".
	ExtractMode string   `yaml:"extract_mode"`
	UserAgent   string   `yaml:"user_agent"`
	CheckInt    Duration `yaml:"check_interval"`
	CycleTime   Duration `yaml:"cycle_timeout"`
	FetchTime   Duration `yaml:"fetch_timeout"`
	MaxBytes    int64    `yaml:"max_bytes"`
	// MaxFailCount skips a site on the schedule after this many consecutive
	// failures. Manual checks bypass the skip.
	MaxFailCount int `yaml:"max_fail_count"`

	// Noise thresholds (global defaults, overridable per site).
	MinAddedChars     int `yaml:"min_added_chars"`
	MinAddedSentences int `yaml:"min_added_sentences"`
	// MinSentenceChars drops sentence fragments shorter than this.
	MinSentenceChars int `yaml:"min_sentence_chars"`
	// KeepDynamic retains elements whose class or id marks machine-generated
	// content (timestamps, session tokens). Stripped by default.
	KeepDynamic bool `yaml:"keep_dynamic"`

	// WebhookURL, when set, POSTs change reports as JSON.
	WebhookURL string `yaml:"webhook_url,omitempty"`

	Sites []*Site `yaml:"sites"`
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ExtractMode == "" {
		c.ExtractMode = "dom"
	}
	if c.UserAgent == "" {
		c.UserAgent = "pagewatch/1.0"
	}
	if c.CheckInt <= 0 {
		c.CheckInt = Duration(time.Hour)
	}
	if c.CycleTime <= 0 {
		c.CycleTime = Duration(2 * time.Minute)
	}
	if c.FetchTime <= 0 {
		c.FetchTime = Duration(30 * time.Second)
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = safeurl.MaxResponseBody
	}
	if c.MaxFailCount <= 0 {
		c.MaxFailCount = 10
	}
	if c.MinAddedChars == 0 {
		c.MinAddedChars = 50
	}
	for _, site := range c.Sites {
		if site.Interval <= 0 {
			site.Interval = c.CheckInt
		}
	}
}

// Validate normalizes site URLs, assigns stable IDs, and rejects duplicate
// targets. Called by LoadConfig; exported for programmatic configs.
func (c *Config) Validate() error {
	c.defaults()

	seen := make(map[string]string, len(c.Sites))
	ids := make(map[string]bool, len(c.Sites))
	for _, site := range c.Sites {
		if site.URL == "" {
			return fmt.Errorf("%w: site %q has no URL", ErrInvalidSite, site.Name)
		}
		normalized, err := NormalizeSiteURL(site.URL)
		if err != nil {
			return fmt.Errorf("site %q: %w", site.Name, err)
		}
		site.URL = normalized
		if err := safeurl.ValidateURL(site.URL); err != nil {
			return fmt.Errorf("%w: site %q: %v", ErrInvalidSite, site.Name, err)
		}
		if site.Name == "" {
			site.Name = site.URL
		}

		key := site.key()
		if other, dup := seen[key]; dup {
			return fmt.Errorf("%w: %q and %q monitor the same target", ErrDuplicateSite, other, site.Name)
		}
		seen[key] = site.Name

		site.ID = slugify(site.Name)
		for n := 2; ids[site.ID]; n++ {
			site.ID = fmt.Sprintf("%s-%d", slugify(site.Name), n)
		}
		ids[site.ID] = true
	}
	return nil
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultConfigYAML is the template written when no config file exists yet.
const DefaultConfigYAML = `# pagewatch configuration
data_dir: data
extract_mode: dom        # dom | article
check_interval: 1h
min_added_chars: 50      # suppress diffs smaller than this
# min_added_sentences: 1
# min_sentence_chars: 30
# keep_dynamic: false    # retain timestamp/session-marked elements
# webhook_url: https://example.com/hooks/pagewatch

sites:
  - name: Example Site
    url: https://example.com
    # selector: "#content"
    # interval: 30m
`

// WriteDefaultConfig writes the starter config template to path.
func WriteDefaultConfig(path string) error {
	return os.WriteFile(path, []byte(DefaultConfigYAML), 0o644)
}

// slugify lowercases s and folds non-alphanumeric runs into single hyphens.
func slugify(s string) string {
	var sb strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				sb.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
