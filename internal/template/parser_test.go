package template

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const siteTemplate = `
parameters:
  domainName:
    type: string
    default: example.com
  environment:
    type: string
    default: prod
    allowedValues: [dev, prod]

conditions:
  isProd:
    equals: ["param://environment", "prod"]

resources:
  siteBucket:
    type: aws:S3.Bucket
    properties:
      bucketName: "param://domainName"
      indexDocument: index.html

  cdn:
    type: aws:CloudFront.Distribution
    properties:
      originDomain: "ref://siteBucket/regionalDomain"
      aliases:
        - "param://domainName"

  dnsRecord:
    type: aws:Route53.RecordSet
    condition: isProd
    dependsOn: [cdn]
    properties:
      name: "param://domainName"
      type: A
      alias:
        dnsName: "ref://cdn/domainName"
        hostedZoneId: "ref://cdn/hostedZoneId"

outputs:
  cdnDomain:
    value: "ref://cdn/domainName"
`

func TestParse_FullTemplate(t *testing.T) {
	tpl, err := Parse([]byte(siteTemplate))
	require.NoError(t, err)

	require.Len(t, tpl.Parameters, 2)
	assert.Equal(t, "domainName", tpl.Parameters[0].Name)
	assert.Equal(t, "string", tpl.Parameters[0].Type)
	assert.Equal(t, []string{"dev", "prod"}, tpl.Parameters[1].AllowedValues)

	require.Contains(t, tpl.Conditions, "isProd")
	assert.Len(t, tpl.Conditions["isProd"].Equals, 2)

	// Declaration order is preserved.
	require.Len(t, tpl.Resources, 3)
	assert.Equal(t, "siteBucket", tpl.Resources[0].Name)
	assert.Equal(t, "cdn", tpl.Resources[1].Name)
	assert.Equal(t, "dnsRecord", tpl.Resources[2].Name)

	assert.Equal(t, "aws", tpl.Resources[0].Provider) // inferred from type
	assert.Equal(t, "isProd", tpl.Resources[2].Condition)
	assert.Equal(t, []string{"cdn"}, tpl.Resources[2].DependsOn)

	require.Len(t, tpl.Outputs, 1)
	assert.Equal(t, "cdnDomain", tpl.Outputs[0].Name)
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("resources: ["))
	require.Error(t, err)
	var pe *ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestParse_DuplicateResource(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
  a:
    type: null:Resource
`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Error(), "duplicate resource")
}

func TestParse_DanglingDependsOn(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
    dependsOn: [ghost]
`))
	require.Error(t, err)
	var re *ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "a", re.Source)
	assert.Equal(t, "ghost", re.Target)
	assert.Equal(t, "resource", re.Kind)
}

func TestParse_DanglingRef(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
    properties:
      value: "ref://missing/attr"
`))
	require.Error(t, err)
	var re *ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "missing", re.Target)
}

func TestParse_UnknownParameter(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
    properties:
      value: "param://nope"
`))
	require.Error(t, err)
	var re *ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "parameter", re.Kind)
	assert.Equal(t, "nope", re.Target)
}

func TestParse_UnknownCondition(t *testing.T) {
	_, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
    condition: missing
`))
	require.Error(t, err)
	var re *ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "condition", re.Kind)
}

func TestParse_ConditionOperatorArity(t *testing.T) {
	_, err := Parse([]byte(`
conditions:
  broken:
    equals: ["a"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "two operands")

	_, err = Parse([]byte(`
conditions:
  broken:
    equals: ["a", "b"]
    not:
      equals: ["a", "b"]
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exactly one")
}

func TestParse_BooleanOperatorArity(t *testing.T) {
	// and/or need at least two operands, at any nesting depth.
	for _, op := range []string{"and", "or"} {
		_, err := Parse([]byte(`
conditions:
  lonely:
    ` + op + `:
      - equals: ["a", "b"]
`))
		require.Error(t, err, op)
		var pe *ParseError
		require.ErrorAs(t, err, &pe, op)
		assert.Contains(t, pe.Error(), `condition "lonely"`)
	}

	_, err := Parse([]byte(`
conditions:
  nested:
    not:
      and:
        - equals: ["a", "b"]
`))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
}

func TestParse_ProviderSettings(t *testing.T) {
	tpl, err := Parse([]byte(`
parameters:
  region:
    type: string
    default: eu-west-1
providers:
  aws:
    region: "param://region"
    profile: site-deployer
resources:
  a:
    type: aws:S3.Bucket
`))
	require.NoError(t, err)
	require.Contains(t, tpl.Providers, "aws")
	assert.Equal(t, "param://region", tpl.Providers["aws"]["region"])
	assert.Equal(t, "site-deployer", tpl.Providers["aws"]["profile"])
}

func TestParse_ProviderSettingsUnknownParameter(t *testing.T) {
	_, err := Parse([]byte(`
providers:
  aws:
    region: "param://region"
resources:
  a:
    type: aws:S3.Bucket
`))
	require.Error(t, err)
	var re *ReferenceError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "provider aws", re.Source)
	assert.Equal(t, "region", re.Target)
	assert.Equal(t, "parameter", re.Kind)
}

func TestParse_Lifecycle(t *testing.T) {
	tpl, err := Parse([]byte(`
resources:
  a:
    type: null:Resource
    lifecycle:
      preventDestroy: true
      ignoreChanges: [tags]
`))
	require.NoError(t, err)
	require.NotNil(t, tpl.Resources[0].Lifecycle)
	assert.True(t, tpl.Resources[0].Lifecycle.PreventDestroy)
	assert.Equal(t, []string{"tags"}, tpl.Resources[0].Lifecycle.IgnoreChanges)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, pe.Path, "nope.yaml")
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stack.yaml")
	require.NoError(t, os.WriteFile(path, []byte(siteTemplate), 0644))

	tpl, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, tpl.Resources, 3)
}
