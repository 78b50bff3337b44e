package proto

const (
	// Keyspace is the backend keyspace that holds every inventory column
	// family.
	Keyspace = "Inventory"

	ReqIdKey = "req-id"
)
