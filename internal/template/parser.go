// Package template parses declarative stack templates: a YAML document
// with parameters, conditions, resources, and outputs sections. Parsing
// has no side effects; all failures are reported as ParseError or
// ReferenceError before any state is touched.
package template

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

var validate = validator.New()

type templateDoc struct {
	Parameters yaml.Node                    `yaml:"parameters"`
	Conditions map[string]*conditionDoc     `yaml:"conditions"`
	Resources  yaml.Node                    `yaml:"resources"`
	Outputs    yaml.Node                    `yaml:"outputs"`
	Providers  map[string]map[string]string `yaml:"providers"`
}

type parameterDoc struct {
	Type          string   `yaml:"type"`
	Default       any      `yaml:"default"`
	AllowedValues []string `yaml:"allowedValues"`
	Description   string   `yaml:"description"`
}

type conditionDoc struct {
	Equals []any           `yaml:"equals"`
	And    []*conditionDoc `yaml:"and"`
	Or     []*conditionDoc `yaml:"or"`
	Not    *conditionDoc   `yaml:"not"`
}

type resourceDoc struct {
	Type       string         `yaml:"type"`
	Provider   string         `yaml:"provider"`
	Condition  string         `yaml:"condition"`
	DependsOn  []string       `yaml:"dependsOn"`
	Lifecycle  *lifecycleDoc  `yaml:"lifecycle"`
	Timeout    string         `yaml:"timeout"`
	Properties map[string]any `yaml:"properties"`
}

type lifecycleDoc struct {
	PreventDestroy bool     `yaml:"preventDestroy"`
	IgnoreChanges  []string `yaml:"ignoreChanges"`
}

type outputDoc struct {
	Value       any    `yaml:"value"`
	Condition   string `yaml:"condition"`
	Description string `yaml:"description"`
}

// Load reads and parses a template file.
func Load(path string) (*ir.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	tpl, err := Parse(data)
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Path = path
			return nil, pe
		}
		return nil, err
	}
	return tpl, nil
}

// Parse decodes a template document and validates its internal
// references. Dangling references and unknown condition or parameter
// names fail with ReferenceError.
func Parse(data []byte) (*ir.Template, error) {
	var doc templateDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Err: err}
	}

	tpl := &ir.Template{
		Conditions: make(map[string]*ir.Condition),
	}

	params, err := decodeParameters(&doc.Parameters)
	if err != nil {
		return nil, err
	}
	tpl.Parameters = params

	for name, c := range doc.Conditions {
		cond, err := buildCondition(name, c)
		if err != nil {
			return nil, err
		}
		tpl.Conditions[name] = cond
	}

	resources, err := decodeResources(&doc.Resources)
	if err != nil {
		return nil, err
	}
	tpl.Resources = resources

	outputs, err := decodeOutputs(&doc.Outputs)
	if err != nil {
		return nil, err
	}
	tpl.Outputs = outputs
	tpl.Providers = doc.Providers

	if err := validateModel(tpl); err != nil {
		return nil, err
	}
	if err := validateReferences(tpl); err != nil {
		return nil, err
	}

	return tpl, nil
}

// decodeParameters walks the parameters mapping node so declaration
// order is preserved.
func decodeParameters(node *yaml.Node) ([]*ir.Parameter, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("parameters section must be a mapping")}
	}

	var params []*ir.Parameter
	seen := make(map[string]bool)
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return nil, &ParseError{Err: fmt.Errorf("duplicate parameter %q", name)}
		}
		seen[name] = true

		var pd parameterDoc
		if err := node.Content[i+1].Decode(&pd); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("parameter %q: %w", name, err)}
		}
		typ := pd.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, &ir.Parameter{
			Name:          name,
			Type:          typ,
			Default:       pd.Default,
			AllowedValues: pd.AllowedValues,
			Description:   pd.Description,
		})
	}
	return params, nil
}

func decodeResources(node *yaml.Node) ([]*ir.Resource, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("resources section must be a mapping")}
	}

	var resources []*ir.Resource
	seen := make(map[string]bool)
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return nil, &ParseError{Err: fmt.Errorf("duplicate resource %q", name)}
		}
		seen[name] = true

		var rd resourceDoc
		if err := node.Content[i+1].Decode(&rd); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("resource %q: %w", name, err)}
		}

		res := &ir.Resource{
			Name:       name,
			Type:       rd.Type,
			Provider:   rd.Provider,
			Condition:  rd.Condition,
			DependsOn:  rd.DependsOn,
			Timeout:    rd.Timeout,
			Properties: rd.Properties,
		}
		if res.Provider == "" {
			res.Provider = inferProvider(res.Type)
		}
		if rd.Lifecycle != nil {
			res.Lifecycle = &ir.Lifecycle{
				PreventDestroy: rd.Lifecycle.PreventDestroy,
				IgnoreChanges:  rd.Lifecycle.IgnoreChanges,
			}
		}
		resources = append(resources, res)
	}
	return resources, nil
}

func decodeOutputs(node *yaml.Node) ([]*ir.Output, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, &ParseError{Err: fmt.Errorf("outputs section must be a mapping")}
	}

	var outputs []*ir.Output
	seen := make(map[string]bool)
	for i := 0; i < len(node.Content); i += 2 {
		name := node.Content[i].Value
		if seen[name] {
			return nil, &ParseError{Err: fmt.Errorf("duplicate output %q", name)}
		}
		seen[name] = true

		var od outputDoc
		if err := node.Content[i+1].Decode(&od); err != nil {
			return nil, &ParseError{Err: fmt.Errorf("output %q: %w", name, err)}
		}
		outputs = append(outputs, &ir.Output{
			Name:        name,
			Value:       od.Value,
			Condition:   od.Condition,
			Description: od.Description,
		})
	}
	return outputs, nil
}

// buildCondition converts a condition document, requiring exactly one
// operator per node.
func buildCondition(name string, doc *conditionDoc) (*ir.Condition, error) {
	if doc == nil {
		return nil, &ParseError{Err: fmt.Errorf("condition %q is empty", name)}
	}
	set := 0
	if doc.Equals != nil {
		set++
	}
	if doc.And != nil {
		set++
	}
	if doc.Or != nil {
		set++
	}
	if doc.Not != nil {
		set++
	}
	if set != 1 {
		return nil, &ParseError{Err: fmt.Errorf("condition %q must have exactly one of equals, and, or, not", name)}
	}

	cond := &ir.Condition{}
	switch {
	case doc.Equals != nil:
		if len(doc.Equals) != 2 {
			return nil, &ParseError{Err: fmt.Errorf("condition %q: equals takes exactly two operands", name)}
		}
		cond.Equals = doc.Equals
	case doc.And != nil:
		for _, sub := range doc.And {
			c, err := buildCondition(name, sub)
			if err != nil {
				return nil, err
			}
			cond.And = append(cond.And, c)
		}
	case doc.Or != nil:
		for _, sub := range doc.Or {
			c, err := buildCondition(name, sub)
			if err != nil {
				return nil, err
			}
			cond.Or = append(cond.Or, c)
		}
	case doc.Not != nil:
		c, err := buildCondition(name, doc.Not)
		if err != nil {
			return nil, err
		}
		cond.Not = c
	}
	return cond, nil
}

// validateModel runs struct-level validation over the decoded model.
func validateModel(tpl *ir.Template) error {
	for _, p := range tpl.Parameters {
		if err := validate.Struct(p); err != nil {
			return &ParseError{Err: fmt.Errorf("parameter %q: %w", p.Name, err)}
		}
	}
	for _, r := range tpl.Resources {
		if err := validate.Struct(r); err != nil {
			return &ParseError{Err: fmt.Errorf("resource %q: %w", r.Name, err)}
		}
	}
	for _, o := range tpl.Outputs {
		if err := validate.Struct(o); err != nil {
			return &ParseError{Err: fmt.Errorf("output %q: %w", o.Name, err)}
		}
	}
	for name, c := range tpl.Conditions {
		if err := validateCondition(name, c); err != nil {
			return err
		}
	}
	return nil
}

// validateCondition applies the struct constraints to every node of a
// condition expression tree.
func validateCondition(name string, c *ir.Condition) error {
	if err := validate.Struct(c); err != nil {
		return &ParseError{Err: fmt.Errorf("condition %q: %w", name, err)}
	}
	for _, sub := range c.And {
		if err := validateCondition(name, sub); err != nil {
			return err
		}
	}
	for _, sub := range c.Or {
		if err := validateCondition(name, sub); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return validateCondition(name, c.Not)
	}
	return nil
}

// validateReferences checks every ref://, param:// and condition name
// against the template's own declarations.
func validateReferences(tpl *ir.Template) error {
	declared := make(map[string]bool, len(tpl.Resources))
	for _, r := range tpl.Resources {
		declared[r.Name] = true
	}
	paramNames := make(map[string]bool, len(tpl.Parameters))
	for _, p := range tpl.Parameters {
		paramNames[p.Name] = true
	}

	checkParams := func(source string, v any) error {
		for _, token := range ir.ExtractParams(v) {
			name, ok := ir.ParamName(token)
			if !ok || !paramNames[name] {
				return &ReferenceError{Source: source, Target: name, Kind: "parameter"}
			}
		}
		return nil
	}
	checkRefs := func(source string, v any) error {
		for _, ref := range ir.ExtractRefs(v) {
			name, _, ok := ir.ParseRef(ref)
			if !ok || !declared[name] {
				return &ReferenceError{Source: source, Target: name, Kind: "resource"}
			}
		}
		return nil
	}

	for _, r := range tpl.Resources {
		for _, dep := range r.DependsOn {
			if !declared[dep] {
				return &ReferenceError{Source: r.Name, Target: dep, Kind: "resource"}
			}
		}
		if r.Condition != "" {
			if _, ok := tpl.Conditions[r.Condition]; !ok {
				return &ReferenceError{Source: r.Name, Target: r.Condition, Kind: "condition"}
			}
		}
		if err := checkRefs(r.Name, r.Properties); err != nil {
			return err
		}
		if err := checkParams(r.Name, r.Properties); err != nil {
			return err
		}
	}

	for _, o := range tpl.Outputs {
		if o.Condition != "" {
			if _, ok := tpl.Conditions[o.Condition]; !ok {
				return &ReferenceError{Source: o.Name, Target: o.Condition, Kind: "condition"}
			}
		}
		if err := checkRefs(o.Name, o.Value); err != nil {
			return err
		}
		if err := checkParams(o.Name, o.Value); err != nil {
			return err
		}
	}

	for name, cond := range tpl.Conditions {
		if err := checkConditionParams(name, cond, paramNames); err != nil {
			return err
		}
	}

	for provName, settings := range tpl.Providers {
		for _, value := range settings {
			if err := checkParams("provider "+provName, value); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkConditionParams(name string, c *ir.Condition, paramNames map[string]bool) error {
	for _, op := range c.Equals {
		for _, token := range ir.ExtractParams(op) {
			pn, ok := ir.ParamName(token)
			if !ok || !paramNames[pn] {
				return &ReferenceError{Source: name, Target: pn, Kind: "parameter"}
			}
		}
	}
	for _, sub := range c.And {
		if err := checkConditionParams(name, sub, paramNames); err != nil {
			return err
		}
	}
	for _, sub := range c.Or {
		if err := checkConditionParams(name, sub, paramNames); err != nil {
			return err
		}
	}
	if c.Not != nil {
		return checkConditionParams(name, c.Not, paramNames)
	}
	return nil
}

// inferProvider derives the provider name from a type tag like
// "aws:S3.Bucket". Types without a prefix map to the null provider.
func inferProvider(typ string) string {
	if i := strings.IndexByte(typ, ':'); i > 0 {
		return typ[:i]
	}
	return "null"
}
