package resource

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateRequested, StateProvisioning, true},
		{StateProvisioning, StateReady, true},
		{StateProvisioning, StateFailed, true},
		{StateReady, StateDeletionRequested, true},
		{StateDeletionRequested, StateDeleted, true},
		{StateDeletionRequested, StateFailed, true},
		{StateRequested, StateReady, false},
		{StateReady, StateDeleted, false},
		{StateDeleted, StateProvisioning, false},
		{StateReady, StateProvisioning, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "DeletionRequested", StateDeletionRequested.String())
	assert.Equal(t, "Unknown", State(42).String())

	text, err := StateReady.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "Ready", string(text))
}

func TestKind(t *testing.T) {
	assert.True(t, KindCollection.RequiresReadiness())
	assert.False(t, KindNamespace.RequiresReadiness())
	assert.False(t, KindScheduledAutomation.RequiresReadiness())
	assert.False(t, Kind("Table").Valid())
	for _, k := range Kinds {
		assert.True(t, k.Valid(), k)
	}
}

func TestErrorClassification(t *testing.T) {
	err := NewError("create", KindCollection, "listings", fmt.Errorf("conflict: %w", ErrAlreadyExists))

	assert.True(t, IsAlreadyExists(err))
	assert.False(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "create Collection.listings")

	var rerr *Error
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "create", rerr.Op)

	assert.Nil(t, NewError("get", KindNamespace, "ns", nil))
	assert.True(t, IsValidation(Validationf("bad %s", "thing")))
	assert.True(t, IsTransport(fmt.Errorf("dial: %w", ErrTransport)))
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name: "namespace",
			spec: Spec{Kind: KindNamespace, Name: "steam_data"},
		},
		{
			name:    "unknown kind",
			spec:    Spec{Kind: "Table", Name: "x"},
			wantErr: "unknown resource kind",
		},
		{
			name:    "empty name",
			spec:    Spec{Kind: KindNamespace, Name: "  "},
			wantErr: "empty name",
		},
		{
			name:    "collection without source",
			spec:    Spec{Kind: KindCollection, Name: "c", Namespace: "ns", Collection: &CollectionParams{}},
			wantErr: "source uri",
		},
		{
			name: "query with duplicate parameter",
			spec: Spec{Kind: KindParameterizedQuery, Name: "q", Namespace: "ns", Query: &QueryParams{
				SQL:        "SELECT 1",
				Parameters: []QueryParameter{{Name: "a"}, {Name: "a"}},
			}},
			wantErr: "duplicate query parameter",
		},
		{
			name:    "automation without schedule",
			spec:    Spec{Kind: KindScheduledAutomation, Name: "a", Namespace: "ns", Automation: &AutomationParams{QueryName: "q"}},
			wantErr: "schedule is required",
		},
		{
			name: "automation unlimited repeats",
			spec: Spec{Kind: KindScheduledAutomation, Name: "a", Namespace: "ns", Automation: &AutomationParams{
				Schedule: "0 16 * * *", QueryName: "q",
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, IsValidation(err))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSpecCloneIsDeep(t *testing.T) {
	orig := Spec{
		Kind:      KindScheduledAutomation,
		Name:      "daily",
		DependsOn: []string{"report"},
		Automation: &AutomationParams{
			QueryName: "report",
			Callback:  &Callback{URL: "https://hooks.example.com"},
		},
	}

	c := orig.Clone()
	c.DependsOn[0] = "other"
	c.Automation.QueryName = "changed"
	c.Automation.Callback.URL = "changed"

	assert.Equal(t, "report", orig.DependsOn[0])
	assert.Equal(t, "report", orig.Automation.QueryName)
	assert.Equal(t, "https://hooks.example.com", orig.Automation.Callback.URL)
}

func TestHandleAttr(t *testing.T) {
	h := Handle{Kind: KindParameterizedQuery, Name: "report", ID: "report", Namespace: "steam_data",
		Attributes: map[string]string{"version": "abc123"}}

	v, ok := h.Attr("version")
	assert.True(t, ok)
	assert.Equal(t, "abc123", v)

	v, ok = h.Attr("namespace")
	assert.True(t, ok)
	assert.Equal(t, "steam_data", v)

	_, ok = h.Attr("missing")
	assert.False(t, ok)
	assert.Equal(t, "ParameterizedQuery.report", h.Address())
}
