package base

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyType(t *testing.T) {
	tests := []struct {
		declared string
		want     TypeClass
	}{
		{"integer", TypeClassInt},
		{"BIGINT UNSIGNED", TypeClassInt},
		{"int(11)", TypeClassInt},
		{"tinyint(1)", TypeClassBool},
		{"tinyint(4)", TypeClassInt},
		{"boolean", TypeClassBool},
		{"bit", TypeClassBool},
		{"timestamp with time zone", TypeClassTime},
		{"datetime2", TypeClassTime},
		{"date", TypeClassTime},
		{"time without time zone", TypeClassTime},
		{"interval", TypeClassUnknown},
		{"jsonb", TypeClassJSON},
		{"numeric(10,2)", TypeClassFloat},
		{"double precision", TypeClassFloat},
		{"real", TypeClassFloat},
		{"character varying(255)", TypeClassUnknown},
		{"", TypeClassUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyType(tt.declared))
		})
	}
}

func TestCoerceRowDeclaredTypes(t *testing.T) {
	schema := &core.TableSchema{
		TableName: "accounts",
		Columns: []core.ColumnDefinition{
			{Name: "id", Type: "integer"},
			{Name: "active", Type: "boolean"},
			{Name: "created_at", Type: "timestamp"},
			{Name: "settings", Type: "jsonb"},
			{Name: "balance", Type: "numeric"},
			{Name: "notes", Type: "text"},
		},
	}
	row := core.Row{
		"id":         "42",
		"active":     "t",
		"created_at": "2024-01-01 10:30:00",
		"settings":   `{"theme":"dark"}`,
		"balance":    []byte("10.50"),
		"notes":      "hello",
		"extra":      "untouched",
	}

	out := CoerceRow(row, schema)

	assert.Equal(t, int64(42), out["id"])
	assert.Equal(t, true, out["active"])
	assert.Equal(t, time.Date(2024, 1, 1, 10, 30, 0, 0, time.UTC), out["created_at"])
	assert.Equal(t, map[string]interface{}{"theme": "dark"}, out["settings"])
	assert.Equal(t, 10.5, out["balance"])
	assert.Equal(t, "hello", out["notes"])
	assert.Equal(t, "untouched", out["extra"])
	// input is not mutated
	assert.Equal(t, "42", row["id"])
}

func TestCoerceRowNullsStayNull(t *testing.T) {
	schema := &core.TableSchema{Columns: []core.ColumnDefinition{
		{Name: "a", Type: "integer"},
		{Name: "b", Type: "boolean"},
		{Name: "c", Type: "timestamp"},
		{Name: "d", Type: "jsonb"},
	}}
	out := CoerceRow(core.Row{"a": nil, "b": nil, "c": nil, "d": nil}, schema)
	for _, k := range []string{"a", "b", "c", "d"} {
		assert.Nil(t, out[k], k)
	}
}

func TestCoerceValueUnparseablePassesThrough(t *testing.T) {
	assert.Equal(t, "abc", CoerceValue("abc", TypeClassInt))
	assert.Equal(t, "not a date", CoerceValue("not a date", TypeClassTime))
	assert.Equal(t, "{broken", CoerceValue("{broken", TypeClassJSON))
	assert.Equal(t, 3.5, CoerceValue(3.5, TypeClassInt))
	assert.Equal(t, int64(3), CoerceValue(3.0, TypeClassInt))
	assert.Equal(t, false, CoerceValue(int64(0), TypeClassBool))
	assert.Equal(t, true, CoerceValue(int64(1), TypeClassBool))
}

func TestCoerceBitValues(t *testing.T) {
	class := ClassifyType("bit(1)")
	require.Equal(t, TypeClassBool, class)

	tests := []struct {
		name string
		in   []byte
		want bool
	}{
		{"zero bit", []byte{0x00}, false},
		{"one bit", []byte{0x01}, true},
		{"wide zero", []byte{0x00, 0x00}, false},
		{"wide set", []byte{0x00, 0x80}, true},
		{"text zero", []byte("0"), false},
		{"text true", []byte("true"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceValue(tt.in, class))
		})
	}
}

func TestEnsureConnected(t *testing.T) {
	bc := NewBaseConnector(core.KindSQLite, "1.0.0", core.ConnectionConfig{Kind: core.KindSQLite})

	err := bc.EnsureConnected("ListTables")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))

	bc.SetConnected(true)
	assert.NoError(t, bc.EnsureConnected("ListTables"))

	bc.SetConnected(false)
	assert.Error(t, bc.EnsureConnected("ListTables"))
}

func TestConnectErrorMessage(t *testing.T) {
	bc := NewBaseConnector(core.KindMySQL, "1.0.0", core.ConnectionConfig{Kind: core.KindMySQL})
	err := bc.ConnectError(fmt.Errorf("dial tcp: refused"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "failed to connect to mysql")
	assert.Contains(t, err.Error(), "dial tcp: refused")
}

func TestHealth(t *testing.T) {
	bc := NewBaseConnector(core.KindPostgreSQL, "1.0.0", core.ConnectionConfig{})

	h := bc.Health(context.Background(), func(context.Context) (string, error) { return "16.2", nil })
	assert.False(t, h.IsConnected)
	assert.NotEmpty(t, h.Error)

	bc.SetConnected(true)
	h = bc.Health(context.Background(), func(context.Context) (string, error) { return "16.2", nil })
	assert.True(t, h.IsConnected)
	assert.Equal(t, "16.2", h.Version)
	require.NotNil(t, h.Latency)

	h = bc.Health(context.Background(), func(context.Context) (string, error) { return "", fmt.Errorf("boom") })
	assert.False(t, h.IsConnected)
	assert.Equal(t, "boom", h.Error)
}

func TestGetMetadataCopiesCapabilities(t *testing.T) {
	bc := NewBaseConnector(core.KindSQLite, "2.0.0", core.ConnectionConfig{}, core.CapabilityRawQuery)
	md := bc.GetMetadata()
	md.Capabilities[0] = "changed"
	assert.Equal(t, core.CapabilityRawQuery, bc.GetMetadata().Capabilities[0])
	assert.Equal(t, "2.0.0", md.Version)
}

func TestRetryPolicyDelay(t *testing.T) {
	rp := NewRetryPolicy(3, 2*time.Second)
	assert.Equal(t, 2*time.Second, rp.Delay(0))
	assert.Equal(t, 4*time.Second, rp.Delay(1))
	assert.Equal(t, 8*time.Second, rp.Delay(2))

	rp.MaxDelay = 5 * time.Second
	assert.Equal(t, 5*time.Second, rp.Delay(2))

	jittered := rp.WithRandomization(0.5)
	d := jittered.Delay(0)
	assert.GreaterOrEqual(t, d, time.Second)
	assert.LessOrEqual(t, d, 3*time.Second)
}

func TestRetryPolicyExecute(t *testing.T) {
	rp := NewRetryPolicy(3, time.Millisecond)

	calls := 0
	err := rp.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	}, nil)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = rp.Execute(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeValidation, "permanent")
	}, errors.IsRetryable)
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
