package engine

import (
	"testing"

	"github.com/picklr-io/reportchain/pkg/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRef(t *testing.T) {
	assert.Equal(t, "ref://report/version", Ref("report", "version"))
}

func TestExtractRefs(t *testing.T) {
	refs := extractRefs(steamSpecs()[3])
	assert.Equal(t, []reference{
		{name: "steam_data", attr: "id"},
		{name: "report", attr: "name"},
		{name: "report", attr: "version"},
	}, refs)

	assert.Empty(t, extractRefs(steamSpecs()[0]))
}

func TestResolveRefs(t *testing.T) {
	created := map[string]resource.Handle{
		"steam_data": {Kind: resource.KindNamespace, Name: "steam_data", ID: "steam_data"},
		"report": {
			Kind: resource.KindParameterizedQuery, Name: "report", ID: "steam_data.report",
			Attributes: map[string]string{"version": "abc123"},
		},
	}
	spec := steamSpecs()[3]

	out, err := resolveRefs(spec, created)
	require.NoError(t, err)
	assert.Equal(t, "steam_data", out.Namespace)
	assert.Equal(t, "report", out.Automation.QueryName)
	assert.Equal(t, "abc123", out.Automation.QueryVersion)

	// the input spec keeps its placeholders
	assert.Equal(t, Ref("report", "version"), spec.Automation.QueryVersion)
}

func TestResolveRefs_Embedded(t *testing.T) {
	created := map[string]resource.Handle{
		"steam_data":             {Kind: resource.KindNamespace, Name: "steam_data", ID: "steam_data"},
		"steam_product_listings": {Kind: resource.KindCollection, Name: "steam_product_listings", ID: "steam_data.steam_product_listings"},
	}

	out, err := resolveRefs(steamSpecs()[2], created)
	require.NoError(t, err)
	assert.Contains(t, out.Query.SQL, "FROM steam_data.steam_product_listings WHERE")
}

func TestResolveRefs_Errors(t *testing.T) {
	spec := steamSpecs()[3]

	_, err := resolveRefs(spec, map[string]resource.Handle{})
	require.Error(t, err)
	assert.True(t, resource.IsValidation(err))
	assert.Contains(t, err.Error(), "has not been created")

	created := map[string]resource.Handle{
		"steam_data": {Kind: resource.KindNamespace, Name: "steam_data", ID: "steam_data"},
		"report":     {Kind: resource.KindParameterizedQuery, Name: "report", ID: "steam_data.report"},
	}
	_, err = resolveRefs(spec, created)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown attribute "version"`)
}
