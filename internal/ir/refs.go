package ir

import "strings"

// RefScheme prefixes a reference to another resource's attribute:
// ref://<logical-name>/<attribute>. ParamScheme prefixes a parameter
// substitution token: param://<parameter-name>.
const (
	RefScheme   = "ref://"
	ParamScheme = "param://"
)

// ExtractRefs walks a property value tree and collects all ref:// tokens.
func ExtractRefs(v any) []string {
	var refs []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, RefScheme) {
			refs = append(refs, val)
		}
	case map[string]any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	case []any:
		for _, v := range val {
			refs = append(refs, ExtractRefs(v)...)
		}
	}
	return refs
}

// ParseRef splits a ref:// token into logical name and attribute.
// ref://bucket/arn -> ("bucket", "arn", true); the attribute may be empty
// for pure ordering references.
func ParseRef(ref string) (name, attr string, ok bool) {
	if !strings.HasPrefix(ref, RefScheme) {
		return "", "", false
	}
	rest := ref[len(RefScheme):]
	if rest == "" {
		return "", "", false
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return rest[:i], rest[i+1:], true
	}
	return rest, "", true
}

// ExtractParams walks a value tree and collects all param:// tokens.
func ExtractParams(v any) []string {
	var params []string
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, ParamScheme) {
			params = append(params, val)
		}
	case map[string]any:
		for _, v := range val {
			params = append(params, ExtractParams(v)...)
		}
	case []any:
		for _, v := range val {
			params = append(params, ExtractParams(v)...)
		}
	}
	return params
}

// ParamName returns the parameter name of a param:// token.
func ParamName(token string) (string, bool) {
	if !strings.HasPrefix(token, ParamScheme) {
		return "", false
	}
	name := token[len(ParamScheme):]
	return name, name != ""
}
