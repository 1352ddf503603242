package core

// Kind identifies a connector family. The set is closed.
type Kind string

const (
	KindPostgreSQL Kind = "postgresql"
	KindMySQL      Kind = "mysql"
	KindMSSQL      Kind = "mssql"
	KindSQLite     Kind = "sqlite"
	KindOracle     Kind = "oracle"
	KindMongoDB    Kind = "mongodb"
	KindRESTAPI    Kind = "rest_api"
)

var allKinds = []Kind{
	KindPostgreSQL,
	KindMySQL,
	KindMSSQL,
	KindSQLite,
	KindOracle,
	KindMongoDB,
	KindRESTAPI,
}

// AllKinds returns every member of the closed kind enumeration
func AllKinds() []Kind {
	out := make([]Kind, len(allKinds))
	copy(out, allKinds)
	return out
}

// IsKnown reports whether k belongs to the closed enumeration
func (k Kind) IsKnown() bool {
	for _, known := range allKinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string {
	return string(k)
}
