package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecimalToCents(t *testing.T) {
	cases := []struct {
		in  string
		out int64
		ok  bool
	}{
		{"1", 100, true},
		{"1.0", 100, true},
		{"1.23", 123, true},
		{"1,23", 123, true},
		{"0.01", 1, true},
		{"1.005", 101, true}, // half-up rounding
		{" 2.50 ", 250, true},
		{"250.50", 25050, true},
		{"-1", 0, false},
		{"0", 0, false},
		{"0.004", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
		{"1e3", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseDecimalToCents(tc.in)
		if tc.ok {
			require.NoError(t, err, tc.in)
			assert.Equal(t, tc.out, got, tc.in)
		} else {
			assert.ErrorIs(t, err, ErrInvalidAmount, tc.in)
		}
	}
}

func TestMoneyString(t *testing.T) {
	assert.Equal(t, "350.50", Money{Cents: 35050}.String())
	assert.Equal(t, "0.05", Money{Cents: 5}.String())
	assert.Equal(t, "-12.00", Money{Cents: -1200}.String())
}

func TestMoneyJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Money `json:"a"`
	}{A: Money{Cents: 7525}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"75.25"}`, string(b))

	var v struct {
		A Money `json:"a"`
		B Money `json:"b"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":"275.25","b":100.1}`), &v))
	assert.Equal(t, int64(27525), v.A.Cents)
	assert.Equal(t, int64(10010), v.B.Cents)

	err = json.Unmarshal([]byte(`{"a":"1.001"}`), &v)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoneyJSONRejectsHugeAmounts(t *testing.T) {
	var v struct {
		A Money `json:"a"`
	}
	for _, in := range []string{`{"a":"99999999999999999999.00"}`, `{"a":-1e30}`} {
		err := json.Unmarshal([]byte(in), &v)
		assert.ErrorIs(t, err, ErrInvalidAmount, in)
	}

	require.NoError(t, json.Unmarshal([]byte(`{"a":"-12.05"}`), &v))
	assert.Equal(t, int64(-1205), v.A.Cents)
}
