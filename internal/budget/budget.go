// Package budget evaluates performance budgets against WebPageTest results.
//
// A budget file mirrors the "data" section of a result document:
//
//	median:
//	  firstView:
//	    TTFB: 800                 # must be strictly less than 800
//	    SpeedIndex: {min: 0, max: 3000}
//
// Keys may also be written as dotted paths ("median.firstView.TTFB: 800").
package budget

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/ethpandaops/wpt-action/internal/metric"
	"gopkg.in/yaml.v3"
)

var (
	errNotMapping = errors.New("budget must be a mapping")
	errNoBounds   = errors.New("range needs min or max")
	errNotNumber  = errors.New("expected a number")
)

// Assertion is a single bound on one result value.
type Assertion struct {
	// Path is the dotted path below the document's data section.
	Path string
	// LessThan is a strict upper bound. Set for plain number leaves.
	LessThan *float64
	Min      *float64
	Max      *float64
}

// Spec is a parsed budget file.
type Spec struct {
	Assertions []Assertion
}

// Result is the outcome of evaluating a Spec.
type Result struct {
	Total    int
	Failed   int
	Failures []string
}

// Passed reports whether every assertion held.
func (r Result) Passed() bool {
	return r.Failed == 0
}

// Message summarises the failures, or returns "" when everything passed.
func (r Result) Message() string {
	switch r.Failed {
	case 0:
		return ""
	case 1:
		return "One performance budget not met."
	default:
		return fmt.Sprintf("%d performance budgets not met.", r.Failed)
	}
}

// Load reads a YAML or JSON budget file.
func Load(path string) (*Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading budget: %w", err)
	}

	return Parse(data)
}

// Parse parses a YAML or JSON budget. Assertions are sorted by path.
func Parse(data []byte) (*Spec, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("parsing budget: %w", err)
	}

	spec := &Spec{}

	if len(node.Content) == 0 {
		return spec, nil
	}

	root := node.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errNotMapping
	}

	if err := walk(root, nil, spec); err != nil {
		return nil, err
	}

	sort.Slice(spec.Assertions, func(i, j int) bool {
		return spec.Assertions[i].Path < spec.Assertions[j].Path
	})

	return spec, nil
}

func walk(node *yaml.Node, prefix []string, spec *Spec) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i].Value, node.Content[i+1]
		path := append(append([]string{}, prefix...), strings.Split(key, ".")...)

		switch value.Kind {
		case yaml.ScalarNode:
			bound, err := number(value)
			if err != nil {
				return fmt.Errorf("budget %s: %w", strings.Join(path, "."), err)
			}

			spec.Assertions = append(spec.Assertions, Assertion{Path: strings.Join(path, "."), LessThan: &bound})
		case yaml.MappingNode:
			if isRange(value) {
				a, err := rangeAssertion(strings.Join(path, "."), value)
				if err != nil {
					return err
				}

				spec.Assertions = append(spec.Assertions, a)

				continue
			}

			if err := walk(value, path, spec); err != nil {
				return err
			}
		default:
			return fmt.Errorf("budget %s: unsupported value", strings.Join(path, ".")) //nolint:err113 // Include path for debugging
		}
	}

	return nil
}

// isRange reports whether a mapping is a {min, max} leaf rather than a
// further level of nesting.
func isRange(node *yaml.Node) bool {
	if len(node.Content) == 0 {
		return false
	}

	for i := 0; i < len(node.Content); i += 2 {
		switch node.Content[i].Value {
		case "min", "max":
		default:
			return false
		}
	}

	return true
}

func rangeAssertion(path string, node *yaml.Node) (Assertion, error) {
	a := Assertion{Path: path}

	for i := 0; i+1 < len(node.Content); i += 2 {
		v, err := number(node.Content[i+1])
		if err != nil {
			return a, fmt.Errorf("budget %s.%s: %w", path, node.Content[i].Value, err)
		}

		if node.Content[i].Value == "min" {
			a.Min = &v
		} else {
			a.Max = &v
		}
	}

	if a.Min == nil && a.Max == nil {
		return a, fmt.Errorf("budget %s: %w", path, errNoBounds)
	}

	return a, nil
}

func number(node *yaml.Node) (float64, error) {
	if node.Kind != yaml.ScalarNode {
		return 0, errNotNumber
	}

	v, err := strconv.ParseFloat(node.Value, 64)
	if err != nil {
		return 0, fmt.Errorf("%w, got %q", errNotNumber, node.Value)
	}

	return v, nil
}

// Evaluate checks every assertion against the data section of doc. A path
// missing from the document counts as a failure.
func (s *Spec) Evaluate(doc *metric.Document) Result {
	res := Result{Total: len(s.Assertions), Failures: make([]string, 0)}

	for _, a := range s.Assertions {
		if msg, ok := a.check(doc); !ok {
			res.Failed++
			res.Failures = append(res.Failures, msg)
		}
	}

	return res
}

func (a Assertion) check(doc *metric.Document) (string, bool) {
	v, ok := resolve(doc.Lookup("data"), strings.Split(a.Path, ".")).Number()
	if !ok {
		return a.Path + ": not found in results", false
	}

	switch {
	case a.LessThan != nil && v >= *a.LessThan:
		return fmt.Sprintf("%s: %s should be less than %s", a.Path, format(v), format(*a.LessThan)), false
	case a.Min != nil && v < *a.Min:
		return fmt.Sprintf("%s: %s should be at least %s", a.Path, format(v), format(*a.Min)), false
	case a.Max != nil && v > *a.Max:
		return fmt.Sprintf("%s: %s should be at most %s", a.Path, format(v), format(*a.Max)), false
	}

	return "", true
}

// resolve walks segments below v. Result keys may themselves contain dots
// ("chromeUserTiming.LargestContentfulPaint"), so the longest literal key that
// exists wins at every level.
func resolve(v metric.Value, segments []string) metric.Value {
	if len(segments) == 0 {
		return v
	}

	for j := len(segments); j > 0; j-- {
		next := v.Get(strings.Join(segments[:j], "."))
		if !next.Exists() {
			continue
		}

		if found := resolve(next, segments[j:]); found.Exists() {
			return found
		}
	}

	return metric.Value{}
}

func format(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
