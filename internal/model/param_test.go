package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParamValue(t *testing.T) {
	tests := []struct {
		name    string
		typeTag string
		raw     string
		want    ParamValue
		wantErr bool
	}{
		{name: "string", typeTag: "string", raw: "resnet-50", want: ParamValue{Type: ParamString, Text: "resnet-50"}},
		{name: "bool true", typeTag: "bool", raw: "true", want: ParamValue{Type: ParamBool, Bool: true}},
		{name: "bool false", typeTag: "bool", raw: "false", want: ParamValue{Type: ParamBool, Bool: false}},
		{name: "int", typeTag: "int", raw: "-42", want: ParamValue{Type: ParamInt, Int: -42}},
		{name: "large int stays exact", typeTag: "int", raw: "9007199254740993", want: ParamValue{Type: ParamInt, Int: 9007199254740993}},
		{name: "float", typeTag: "float", raw: "0.003", want: ParamValue{Type: ParamFloat, Float: 0.003}},
		{name: "float scientific", typeTag: "float", raw: "1e-5", want: ParamValue{Type: ParamFloat, Float: 1e-5}},
		{name: "unknown type", typeTag: "decimal", raw: "1.0", wantErr: true},
		{name: "empty type", typeTag: "", raw: "x", wantErr: true},
		{name: "bad int", typeTag: "int", raw: "3.5", wantErr: true},
		{name: "bad float", typeTag: "float", raw: "fast", wantErr: true},
		{name: "bad bool", typeTag: "bool", raw: "yes?", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseParamValue(tt.typeTag, tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseParamValueUnknownTypeSentinel(t *testing.T) {
	_, err := ParseParamValue("blob", "x")
	require.ErrorIs(t, err, ErrInvalidParamType)
}

func TestParamValueRoundTrip(t *testing.T) {
	// String() must reproduce the wire form so re-logging a displayed value
	// is lossless.
	for _, raw := range []string{"0.25", "1e-5", "-7", "true", "plain text"} {
		for _, tag := range []string{"string", "bool", "int", "float"} {
			v, err := ParseParamValue(tag, raw)
			if err != nil {
				continue
			}
			back, err := ParseParamValue(tag, v.String())
			require.NoError(t, err)
			assert.Equal(t, v, back, "type %s raw %q", tag, raw)
		}
	}
}

func TestParamValueNative(t *testing.T) {
	assert.Equal(t, int64(5), ParamValue{Type: ParamInt, Int: 5}.Native())
	assert.Equal(t, 2.5, ParamValue{Type: ParamFloat, Float: 2.5}.Native())
	assert.Equal(t, true, ParamValue{Type: ParamBool, Bool: true}.Native())
	assert.Equal(t, "x", ParamValue{Type: ParamString, Text: "x"}.Native())
}
