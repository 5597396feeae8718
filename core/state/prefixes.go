package state

var (
	accountPrefix     = []byte("account:")
	accountDataPrefix = []byte("account-data:")
	kvPrefix          = []byte("kv:")
)
