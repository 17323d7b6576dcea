package template

import (
	"fmt"
	"strconv"

	"github.com/cumulus-iac/cumulus/internal/ir"
)

// Evaluate resolves parameters from overrides and defaults, evaluates
// conditions once, and returns the desired configuration: resources and
// outputs with param:// tokens substituted and excluded entries dropped.
// ref:// tokens are left intact; they resolve against state at apply time.
func Evaluate(tpl *ir.Template, overrides map[string]string) (*ir.Config, map[string]string, error) {
	values, err := resolveParameters(tpl.Parameters, overrides)
	if err != nil {
		return nil, nil, err
	}

	conditions := make(map[string]bool, len(tpl.Conditions))
	for name, cond := range tpl.Conditions {
		v, err := evalCondition(cond, values)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to evaluate condition %q: %w", name, err)
		}
		conditions[name] = v
	}

	cfg := &ir.Config{Outputs: make(map[string]any)}
	for _, res := range tpl.Resources {
		if res.Condition != "" && !conditions[res.Condition] {
			continue
		}
		r := *res
		if props, ok := substitute(res.Properties, values).(map[string]any); ok {
			r.Properties = props
		}
		cfg.Resources = append(cfg.Resources, &r)
	}
	for _, out := range tpl.Outputs {
		if out.Condition != "" && !conditions[out.Condition] {
			continue
		}
		cfg.Outputs[out.Name] = substitute(out.Value, values)
	}

	if len(tpl.Providers) > 0 {
		cfg.Providers = make(map[string]map[string]string, len(tpl.Providers))
		for name, settings := range tpl.Providers {
			resolved := make(map[string]string, len(settings))
			for k, v := range settings {
				resolved[k] = fmt.Sprintf("%v", substitute(v, values))
			}
			cfg.Providers[name] = resolved
		}
	}

	resolved := make(map[string]string, len(values))
	for k, v := range values {
		resolved[k] = fmt.Sprintf("%v", v)
	}
	return cfg, resolved, nil
}

// resolveParameters merges overrides with declared defaults, coercing
// override strings to the declared type and enforcing allowed values.
func resolveParameters(params []*ir.Parameter, overrides map[string]string) (map[string]any, error) {
	declared := make(map[string]bool, len(params))
	values := make(map[string]any, len(params))

	for _, p := range params {
		declared[p.Name] = true

		var value any
		if raw, ok := overrides[p.Name]; ok {
			coerced, err := coerce(raw, p.Type)
			if err != nil {
				return nil, fmt.Errorf("parameter %q: %w", p.Name, err)
			}
			value = coerced
		} else if p.Default != nil {
			value = p.Default
		} else {
			return nil, fmt.Errorf("parameter %q has no default and was not provided", p.Name)
		}

		if len(p.AllowedValues) > 0 {
			allowed := false
			str := fmt.Sprintf("%v", value)
			for _, a := range p.AllowedValues {
				if a == str {
					allowed = true
					break
				}
			}
			if !allowed {
				return nil, fmt.Errorf("parameter %q: value %q is not in allowed values %v", p.Name, str, p.AllowedValues)
			}
		}
		values[p.Name] = value
	}

	for name := range overrides {
		if !declared[name] {
			return nil, &ReferenceError{Source: "command line", Target: name, Kind: "parameter"}
		}
	}

	return values, nil
}

func coerce(raw, typ string) (any, error) {
	switch typ {
	case "", "string":
		return raw, nil
	case "number":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("expected a number, got %q", raw)
		}
		return f, nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("expected a boolean, got %q", raw)
		}
		return b, nil
	default:
		return nil, fmt.Errorf("unknown parameter type %q", typ)
	}
}

// evalCondition evaluates a boolean expression tree against resolved
// parameter values. Conditions are evaluated once per plan.
func evalCondition(c *ir.Condition, values map[string]any) (bool, error) {
	switch {
	case c.Equals != nil:
		a := substitute(c.Equals[0], values)
		b := substitute(c.Equals[1], values)
		return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b), nil
	case c.And != nil:
		for _, sub := range c.And {
			v, err := evalCondition(sub, values)
			if err != nil || !v {
				return false, err
			}
		}
		return true, nil
	case c.Or != nil:
		for _, sub := range c.Or {
			v, err := evalCondition(sub, values)
			if err != nil {
				return false, err
			}
			if v {
				return true, nil
			}
		}
		return false, nil
	case c.Not != nil:
		v, err := evalCondition(c.Not, values)
		return !v, err
	}
	return false, fmt.Errorf("empty condition expression")
}

// substitute replaces whole-string param:// tokens with their resolved
// values throughout a value tree.
func substitute(v any, values map[string]any) any {
	switch val := v.(type) {
	case string:
		if name, ok := ir.ParamName(val); ok {
			if resolved, exists := values[name]; exists {
				return resolved
			}
		}
		return val
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = substitute(v, values)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = substitute(v, values)
		}
		return out
	default:
		return val
	}
}
