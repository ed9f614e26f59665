package util

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDate(t *testing.T) {
	got, err := ParseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, NewDate(2024, time.January, 15), got)

	_, err = ParseDate("01/15/2024")
	assert.Error(t, err)
}

func TestDateOrdering(t *testing.T) {
	open := MustParseDate("2024-01-01")
	mid := MustParseDate("2024-01-15")
	exp := MustParseDate("2024-02-01")

	assert.True(t, open.Before(mid))
	assert.True(t, exp.After(mid))
	assert.True(t, mid.Within(open, exp))
	assert.True(t, exp.Within(open, exp), "bounds are inclusive")
	assert.False(t, exp.AddDays(1).Within(open, exp))
	assert.Equal(t, 31, open.DaysUntil(exp))
	assert.Equal(t, -31, exp.DaysUntil(open))
}

func TestDTE(t *testing.T) {
	asOf := MustParseDate("2024-01-01")
	assert.Equal(t, 45, DTE(asOf, MustParseDate("2024-02-15")))
	assert.Equal(t, 0, DTE(asOf, MustParseDate("2023-12-01")), "expired contracts floor at zero")
}

func TestManagementDate(t *testing.T) {
	open := MustParseDate("2024-01-01")

	got, ok := ManagementDate(open, 45, DefaultManagementDTE)
	require.True(t, ok)
	assert.Equal(t, "2024-01-22", got.String())

	_, ok = ManagementDate(open, 21, DefaultManagementDTE)
	assert.False(t, ok, "no management mark once inside 21 DTE")
}

func TestDateJSON(t *testing.T) {
	type wrapper struct {
		When Date  `json:"when"`
		Opt  *Date `json:"opt,omitempty"`
	}

	b, err := json.Marshal(wrapper{When: MustParseDate("2024-03-08")})
	require.NoError(t, err)
	assert.JSONEq(t, `{"when":"2024-03-08"}`, string(b))

	var w wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"when":"2024-03-08T15:04:05Z"}`), &w))
	assert.Equal(t, "2024-03-08", w.When.String())

	require.NoError(t, json.Unmarshal([]byte(`{"when":null}`), &w))
	assert.True(t, w.When.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"when":"03/08/2024"}`), &w))
}

func TestDateScan(t *testing.T) {
	var dt Date
	require.NoError(t, dt.Scan("2024-05-01"))
	assert.Equal(t, "2024-05-01", dt.String())

	require.NoError(t, dt.Scan(nil))
	assert.True(t, dt.IsZero())

	v, err := MustParseDate("2024-05-01").Value()
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", v)
}
