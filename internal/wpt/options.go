package wpt

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var errOptionsNotObject = errors.New("options file must contain a mapping")

// Options configures a WebPageTest run.
type Options struct {
	FirstViewOnly bool   `yaml:"firstViewOnly"`
	Runs          int    `yaml:"runs"`
	Location      string `yaml:"location"`
	Connectivity  string `yaml:"connectivity"`
	EmulateMobile bool   `yaml:"emulateMobile"`
	Lighthouse    bool   `yaml:"lighthouse"`
	Label         string `yaml:"label"`
	// PollResults is the status poll interval in seconds.
	PollResults int `yaml:"pollResults"`
	// Timeout is the overall time to wait for a test, in seconds.
	Timeout int `yaml:"timeout"`

	// Extra holds unrecognised keys, forwarded verbatim as query parameters.
	Extra map[string]string `yaml:"-"`
}

// DefaultOptions returns the options used when nothing is overridden.
func DefaultOptions() Options {
	return Options{
		FirstViewOnly: true,
		Runs:          3,
		Location:      "Dulles:Chrome",
		Connectivity:  "4G",
		PollResults:   5,
		Timeout:       240,
		EmulateMobile: true,
	}
}

var knownKeys = map[string]struct{}{
	"firstViewOnly": {},
	"runs":          {},
	"location":      {},
	"connectivity":  {},
	"emulateMobile": {},
	"lighthouse":    {},
	"label":         {},
	"pollResults":   {},
	"timeout":       {},
}

// LoadOptions applies the overrides from a YAML or JSON file on top of base.
func LoadOptions(path string, base Options) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("reading options file: %w", err)
	}

	return ParseOptions(data, base)
}

// ParseOptions applies YAML or JSON overrides on top of base.
func ParseOptions(data []byte, base Options) (Options, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return base, fmt.Errorf("parsing options: %w", err)
	}

	if len(node.Content) == 0 {
		return base, nil
	}

	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return base, errOptionsNotObject
	}

	opts := base
	if err := root.Decode(&opts); err != nil {
		return base, fmt.Errorf("decoding options: %w", err)
	}

	extra := make(map[string]string, len(base.Extra))
	for k, v := range base.Extra {
		extra[k] = v
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		key, value := root.Content[i].Value, root.Content[i+1]
		if _, ok := knownKeys[key]; ok {
			continue
		}

		if value.Kind != yaml.ScalarNode {
			return base, fmt.Errorf("option %q must be a scalar", key) //nolint:err113 // Include key for debugging
		}

		extra[key] = value.Value
	}

	if len(extra) > 0 {
		opts.Extra = extra
	}

	return opts, nil
}

// PollInterval returns the status poll interval.
func (o Options) PollInterval() time.Duration {
	if o.PollResults <= 0 {
		return 5 * time.Second
	}

	return time.Duration(o.PollResults) * time.Second
}

// WaitTimeout returns how long to wait for a test to complete.
func (o Options) WaitTimeout() time.Duration {
	if o.Timeout <= 0 {
		return 240 * time.Second
	}

	return time.Duration(o.Timeout) * time.Second
}

// Query encodes the options as runtest.php query parameters.
func (o Options) Query() url.Values {
	q := url.Values{}

	location := o.Location
	if o.Connectivity != "" && location != "" {
		location += "." + o.Connectivity
	}

	if location != "" {
		q.Set("location", location)
	}

	if o.Runs > 0 {
		q.Set("runs", strconv.Itoa(o.Runs))
	}

	q.Set("fvonly", boolParam(o.FirstViewOnly))

	if o.EmulateMobile {
		q.Set("mobile", "1")
	}

	if o.Lighthouse {
		q.Set("lighthouse", "1")
	}

	if o.Label != "" {
		q.Set("label", o.Label)
	}

	for _, k := range o.extraKeys() {
		q.Set(k, o.Extra[k])
	}

	return q
}

// String renders the options for logging.
func (o Options) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "firstViewOnly=%t runs=%d location=%s connectivity=%s emulateMobile=%t lighthouse=%t pollResults=%ds timeout=%ds",
		o.FirstViewOnly, o.Runs, o.Location, o.Connectivity, o.EmulateMobile, o.Lighthouse, o.PollResults, o.Timeout)

	if o.Label != "" {
		fmt.Fprintf(&b, " label=%q", o.Label)
	}

	for _, k := range o.extraKeys() {
		fmt.Fprintf(&b, " %s=%s", k, o.Extra[k])
	}

	return b.String()
}

func (o Options) extraKeys() []string {
	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}

func boolParam(v bool) string {
	if v {
		return "1"
	}

	return "0"
}
