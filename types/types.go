package types

const (
	DefaultAPIPort = 9510

	DefaultDataDir = "/var/lib/resource-dispatcher"

	// HeaderPrincipal carries the name of the operator calling the API.
	HeaderPrincipal = "X-Dispatcher-Principal"
)

// LockedResourcePath is where the locked resource snapshot lives in the metadata of a run.
var LockedResourcePath = []string{"external-resources", "locked"}
