package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/n1qlorm/internal/dberr"
)

// Scenario is a sequence of builder queries run against one connection,
// with expectations on each step and assertions on the final state.
type Scenario struct {
	// Name uniquely identifies the scenario; golden files are named after
	// it.
	Name string `yaml:"name"`

	Description string `yaml:"description"`

	// Bucket defaults to "default".
	Bucket string `yaml:"bucket,omitempty"`

	// TypeField defaults to "eloquent_type".
	TypeField string `yaml:"type_field,omitempty"`

	// Consistency is request_plus (default) or not_bounded.
	Consistency string `yaml:"consistency,omitempty"`

	// Inline substitutes values into statement text instead of sending
	// positional parameters.
	Inline bool `yaml:"inline,omitempty"`

	// Models is an optional directory of CUE model declarations, relative
	// to the scenario file. Steps with op "load" need it.
	Models string `yaml:"models,omitempty"`

	// Seed documents are stored before the flow runs, keyed by document
	// key.
	Seed map[string]map[string]any `yaml:"seed,omitempty"`

	// Responses are replayed in order by the scripted query service. They
	// are ignored when the scenario runs against a real backend.
	Responses []Response `yaml:"responses,omitempty"`

	Flow       []Step      `yaml:"flow"`
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Response is one scripted query-service reply.
type Response struct {
	Rows          []map[string]any `yaml:"rows,omitempty"`
	SortCount     uint64           `yaml:"sort_count,omitempty"`
	MutationCount uint64           `yaml:"mutation_count,omitempty"`

	// Error, when set, is the code of the error returned instead of rows.
	Error   string `yaml:"error,omitempty"`
	Message string `yaml:"message,omitempty"`
}

// Step is one builder call chain.
type Step struct {
	Name   string  `yaml:"name"`
	Query  Query   `yaml:"query"`
	Op     string  `yaml:"op"`
	Args   Args    `yaml:"args,omitempty"`
	Expect *Expect `yaml:"expect,omitempty"`
}

// Query describes a builder: the document type and the clause calls, in
// order. Each clause is a single-key map such as {where: [name, knife]}.
type Query struct {
	From    string   `yaml:"from"`
	Clauses []Clause `yaml:"clauses,omitempty"`
}

// Clause is one builder clause call.
type Clause map[string]any

// name returns the clause method and its argument.
func (c Clause) name() (string, any, error) {
	if len(c) != 1 {
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return "", nil, fmt.Errorf("clause must have exactly one key, got %v", keys)
	}
	for k, v := range c {
		return k, v, nil
	}
	panic("unreachable")
}

// Args are the operation arguments; each op reads the fields it needs.
type Args struct {
	Key      string           `yaml:"key,omitempty"`
	Column   string           `yaml:"column,omitempty"`
	Columns  []string         `yaml:"columns,omitempty"`
	Values   []any            `yaml:"values,omitempty"`
	Set      map[string]any   `yaml:"set,omitempty"`
	Docs     []map[string]any `yaml:"docs,omitempty"`
	Unique   bool             `yaml:"unique,omitempty"`
	PerPage  int              `yaml:"per_page,omitempty"`
	Page     int              `yaml:"page,omitempty"`
	Array    string           `yaml:"array,omitempty"`
	KeyField string           `yaml:"key_field,omitempty"`
	Match    any              `yaml:"match,omitempty"`
	Model    string           `yaml:"model,omitempty"`
	With     []string         `yaml:"with,omitempty"`
}

// Expect checks the outcome of a step. Unset fields are not checked.
type Expect struct {
	// SQL is the compiled text for ops sql and inline, otherwise the last
	// statement the step sent to the query service.
	SQL      string `yaml:"sql,omitempty"`
	Bindings []any  `yaml:"bindings,omitempty"`

	// Statements is the number of statements the step sent.
	Statements *int `yaml:"statements,omitempty"`

	Rows  *int `yaml:"rows,omitempty"`
	Value any  `yaml:"value,omitempty"`

	// Error is the expected error code; the step must fail with it.
	Error string `yaml:"error,omitempty"`
}

// Assertion checks the trace or the stored documents after the flow.
type Assertion struct {
	Type string `yaml:"type"`

	// Key and Doc are used by document: Doc is a subset match; with Absent
	// set the key must not exist.
	Key    string         `yaml:"key,omitempty"`
	Doc    map[string]any `yaml:"doc,omitempty"`
	Absent bool           `yaml:"absent,omitempty"`

	// Op and Contains are used by trace_contains.
	Op       string `yaml:"op,omitempty"`
	Contains string `yaml:"contains,omitempty"`

	// Ops is used by trace_order.
	Ops []string `yaml:"ops,omitempty"`

	// Count is used by statement_count.
	Count int `yaml:"count,omitempty"`
}

// Assertion types.
const (
	AssertDocument       = "document"
	AssertTraceContains  = "trace_contains"
	AssertTraceOrder     = "trace_order"
	AssertStatementCount = "statement_count"
)

// Step operations.
var ops = map[string]bool{
	"sql": true, "inline": true,
	"get": true, "first": true, "find": true, "exists": true, "value": true, "pluck": true,
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"paginate": true,
	"insert": true, "insert_query": true, "update": true, "update_embedded": true,
	"unset": true, "delete": true, "push": true, "pull": true,
	"load": true,
}

// LoadScenario reads a scenario file. Unknown fields are rejected, and the
// models path is resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}
	if s.Models != "" && !filepath.IsAbs(s.Models) {
		s.Models = filepath.Join(filepath.Dir(path), s.Models)
	}
	if s.Models != "" {
		if _, err := os.Stat(s.Models); err != nil {
			return nil, fmt.Errorf("invalid scenario: models directory: %w", err)
		}
	}
	return s, nil
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&s); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &s, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	for i, r := range s.Responses {
		if r.Error != "" && !dberr.Code(r.Error).Valid() {
			return fmt.Errorf("responses[%d]: unknown error code %q", i, r.Error)
		}
	}
	for i, step := range s.Flow {
		if step.Name == "" {
			return fmt.Errorf("flow[%d]: name is required", i)
		}
		if !ops[step.Op] {
			return fmt.Errorf("flow[%d]: unknown op %q", i, step.Op)
		}
		if step.Op == "load" && s.Models == "" {
			return fmt.Errorf("flow[%d]: op load needs a models directory", i)
		}
		for j, c := range step.Query.Clauses {
			if _, _, err := c.name(); err != nil {
				return fmt.Errorf("flow[%d].clauses[%d]: %w", i, j, err)
			}
		}
		if e := step.Expect; e != nil && e.Error != "" && !dberr.Code(e.Error).Valid() {
			return fmt.Errorf("flow[%d].expect: unknown error code %q", i, e.Error)
		}
	}
	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertDocument:
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for document", index)
		}
		if !a.Absent && len(a.Doc) == 0 {
			return fmt.Errorf("assertions[%d]: doc or absent is required for document", index)
		}
	case AssertTraceContains:
		if a.Op == "" && a.Contains == "" {
			return fmt.Errorf("assertions[%d]: op or contains is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Ops) == 0 {
			return fmt.Errorf("assertions[%d]: ops list is required for trace_order", index)
		}
	case AssertStatementCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
