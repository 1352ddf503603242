package postgresql

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/ajitpratap0/nebula-hub/pkg/connector/core"
	"github.com/ajitpratap0/nebula-hub/pkg/errors"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectionString(t *testing.T) {
	dsn := ConnectionString(core.ConnectionConfig{
		Kind:     core.KindPostgreSQL,
		Host:     "db.internal",
		Database: "crm",
		Username: "reader",
		Password: "p@ss word",
		SSL:      true,
		Options:  map[string]string{"schema": "sales", "application_name": "nebula-hub"},
	})

	u, err := url.Parse(dsn)
	require.NoError(t, err)
	assert.Equal(t, "postgres", u.Scheme)
	assert.Equal(t, "db.internal:5432", u.Host)
	assert.Equal(t, "/crm", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss word", pw)
	assert.Equal(t, "require", u.Query().Get("sslmode"))
	assert.Equal(t, "nebula-hub", u.Query().Get("application_name"))
	assert.Empty(t, u.Query().Get("schema"))
}

func TestNewRequiresHost(t *testing.T) {
	_, err := NewPostgreSQLSource(core.ConnectionConfig{Kind: core.KindPostgreSQL})
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestOperationsRequireConnect(t *testing.T) {
	conn, err := NewPostgreSQLSource(core.ConnectionConfig{Kind: core.KindPostgreSQL, Host: "localhost"})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = conn.ListTables(ctx)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))

	_, err = conn.GetTableSchema(ctx, "users")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))

	_, err = conn.FetchRows(ctx, core.FetchOptions{Table: "users"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))

	_, err = conn.(core.QueryExecutor).ExecuteQuery(ctx, "SELECT 1", nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))

	health := conn.TestConnection(ctx)
	assert.False(t, health.IsConnected)
	assert.NotEmpty(t, health.Error)
}

func TestConnectFailureLeavesDisconnected(t *testing.T) {
	conn, err := NewPostgreSQLSource(core.ConnectionConfig{
		Kind: core.KindPostgreSQL,
		Host: "127.0.0.1",
		Port: 1,
		Pool: core.PoolSettings{ConnectTimeout: 200 * time.Millisecond},
	})
	require.NoError(t, err)

	err = conn.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Contains(t, err.Error(), "failed to connect to postgresql")

	_, err = conn.ListTables(context.Background())
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotConnected))
}

func TestConvertValue(t *testing.T) {
	assert.Nil(t, convertValue(nil))

	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.75"))
	assert.Equal(t, 12.75, convertValue(n))

	id := [16]byte{0x6b, 0xa7, 0xb8, 0x10, 0x9d, 0xad, 0x11, 0xd1, 0x80, 0xb4, 0x00, 0xc0, 0x4f, 0xd4, 0x30, 0xc8}
	assert.Equal(t, "6ba7b810-9dad-11d1-80b4-00c04fd430c8", convertValue(id))

	assert.Equal(t, "text", convertValue("text"))
}
