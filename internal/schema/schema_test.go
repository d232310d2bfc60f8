package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

func compiledSpec(t *testing.T, spec *Spec) *Spec {
	t.Helper()
	require.NoError(t, spec.Compile())
	return spec
}

func TestSpec_Compile(t *testing.T) {
	tests := []struct {
		name    string
		spec    *Spec
		wantErr string
	}{
		{
			name: "valid spec",
			spec: &Spec{Name: "test", Fields: map[string]*Field{
				"url":   {Type: "string", Required: true, Pattern: `^https?://`},
				"count": {Type: "integer", Min: floatPtr(0)},
				"tags":  {Type: "array", Items: &Field{Type: "string"}},
				"meta":  {Type: "object", Fields: map[string]*Field{"k": {Type: "string"}}},
			}},
		},
		{
			name:    "missing name",
			spec:    &Spec{Fields: map[string]*Field{}},
			wantErr: "requires a name",
		},
		{
			name:    "bad type",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "decimal"}}},
			wantErr: `unsupported type "decimal"`,
		},
		{
			name:    "bad pattern",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "string", Pattern: "["}}},
			wantErr: "invalid pattern",
		},
		{
			name:    "min exceeds max",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "number", Min: floatPtr(5), Max: floatPtr(1)}}},
			wantErr: "min (5) cannot exceed max (1)",
		},
		{
			name:    "enum type mismatch",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "string", Enum: []any{1}}}},
			wantErr: "expected string",
		},
		{
			name:    "boolean with constraints",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "boolean", MinLength: intPtr(1)}}},
			wantErr: "do not support constraints",
		},
		{
			name:    "bad nested field",
			spec:    &Spec{Name: "t", Fields: map[string]*Field{"x": {Type: "object", Fields: map[string]*Field{"y": {Type: "nope"}}}}},
			wantErr: `nested field "y"`,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.spec.Compile()
			if tc.wantErr == "" {
				require.NoError(t, err)
			} else {
				require.ErrorContains(t, err, tc.wantErr)
			}
		})
	}
}

func TestSpec_ValidateData(t *testing.T) {
	spec := compiledSpec(t, &Spec{
		Name: "pager.settings",
		Fields: map[string]*Field{
			"api_key":  {Type: "string", Required: true, MinLength: intPtr(1)},
			"base_url": {Type: "string", Pattern: `^https://`},
			"retries":  {Type: "integer", Min: floatPtr(0), Max: floatPtr(10)},
			"region":   {Type: "string", Enum: []any{"us", "eu"}},
			"verbose":  {Type: "boolean"},
			"channels": {Type: "array", Items: &Field{Type: "string", MinLength: intPtr(1)}},
			"owner":    {Type: "object", Fields: map[string]*Field{"email": {Type: "string", Required: true}}},
		},
	})

	tests := []struct {
		name       string
		data       map[string]any
		wantFields []string
	}{
		{
			name: "valid full",
			data: map[string]any{
				"api_key":  "k",
				"base_url": "https://api.example.com",
				"retries":  float64(3),
				"region":   "eu",
				"verbose":  true,
				"channels": []any{"a", "b"},
				"owner":    map[string]any{"email": "x@y.z"},
			},
		},
		{
			name: "valid minimal",
			data: map[string]any{"api_key": "k"},
		},
		{
			name:       "missing required",
			data:       map[string]any{},
			wantFields: []string{"api_key"},
		},
		{
			name:       "required null rejected",
			data:       map[string]any{"api_key": nil},
			wantFields: []string{"api_key"},
		},
		{
			name:       "type mismatch",
			data:       map[string]any{"api_key": "k", "retries": "three"},
			wantFields: []string{"retries"},
		},
		{
			name:       "fractional integer",
			data:       map[string]any{"api_key": "k", "retries": 1.5},
			wantFields: []string{"retries"},
		},
		{
			name:       "enum violation",
			data:       map[string]any{"api_key": "k", "region": "apac"},
			wantFields: []string{"region"},
		},
		{
			name:       "pattern violation",
			data:       map[string]any{"api_key": "k", "base_url": "http://insecure"},
			wantFields: []string{"base_url"},
		},
		{
			name:       "array element violation",
			data:       map[string]any{"api_key": "k", "channels": []any{"ok", ""}},
			wantFields: []string{"channels[1]"},
		},
		{
			name:       "nested object violation",
			data:       map[string]any{"api_key": "k", "owner": map[string]any{}},
			wantFields: []string{"owner.email"},
		},
		{
			name:       "collects all violations",
			data:       map[string]any{"region": "apac", "retries": float64(99)},
			wantFields: []string{"api_key", "region", "retries"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := spec.ValidateData(tc.data)
			if len(tc.wantFields) == 0 {
				require.NoError(t, err)
				return
			}
			var multi *MultiValidationError
			require.ErrorAs(t, err, &multi)
			var got []string
			for _, ve := range multi.Errors {
				got = append(got, ve.Field)
			}
			require.ElementsMatch(t, tc.wantFields, got)
		})
	}
}

func TestSpec_StrictMode(t *testing.T) {
	spec := compiledSpec(t, &Spec{
		Name:   "t",
		Strict: true,
		Fields: map[string]*Field{"known": {Type: "string"}},
	})

	err := spec.ValidateData(map[string]any{"known": "v", "mystery": 1})
	var multi *MultiValidationError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Errors, 1)
	require.Equal(t, []string{"mystery"}, multi.Errors[0].UnknownFields)

	details := multi.Details()
	require.NotNil(t, details)
}

func TestSpec_ValidateBeforeCompile(t *testing.T) {
	spec := &Spec{Name: "t", Fields: map[string]*Field{}}
	require.ErrorContains(t, spec.ValidateData(map[string]any{}), "before Compile")
}
