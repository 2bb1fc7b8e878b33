package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRecordID(t *testing.T) {
	tests := []struct {
		name    string
		in      interface{}
		want    RecordID
		wantErr bool
	}{
		{"int", 1, "1", false},
		{"int64", int64(42), "42", false},
		{"integral float", 3.0, "3", false},
		{"fractional float", 3.5, "3.5", false},
		{"string", "  7 ", "7", false},
		{"json number", json.Number("12"), "12", false},
		{"json float number", json.Number("12.0"), "12", false},
		{"json leading zeros", json.Number("007"), "7", false},
		{"json negative", json.Number("-0042"), "-42", false},
		{"json exponent", json.Number("1e3"), "1000", false},
		{"json fraction", json.Number("2.25"), "2.25", false},
		{"json beyond int64", json.Number("12345678901234567891"), "12345678901234567891", false},
		{"json beyond int64 neighbor", json.Number("12345678901234567890"), "12345678901234567890", false},
		{"json wide integral decimal", json.Number("98765432109876543210.000"), "98765432109876543210", false},
		{"json garbage", json.Number("twelve"), "", true},
		{"nil", nil, "", true},
		{"empty string", "   ", "", true},
		{"bool", true, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRecordID(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseRecordID_IntAndStringAgree(t *testing.T) {
	a, err := ParseRecordID(5)
	require.NoError(t, err)
	b, err := ParseRecordID("5")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestParseRecordID_LargeIntegersStayDistinct(t *testing.T) {
	a, err := ParseRecordID(json.Number("12345678901234567891"))
	require.NoError(t, err)
	b, err := ParseRecordID(json.Number("12345678901234567890"))
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestRecord_Field(t *testing.T) {
	r := &Record{ID: "9", Title: "t", Abstract: "a", Year: 2020, Journal: "j",
		Fields: map[string]string{"keywords": "k1 k2"}}
	assert.Equal(t, "t", r.Field("title"))
	assert.Equal(t, "a", r.Field("abstract"))
	assert.Equal(t, "2020", r.Field("year"))
	assert.Equal(t, "k1 k2", r.Field("keywords"))
	assert.Equal(t, "", r.Field("missing"))
	assert.Equal(t, "", (&Record{}).Field("missing"))
}
