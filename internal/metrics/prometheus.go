package metrics

import "github.com/docker/go-metrics"

const (
	// NamespacePrefix is the namespace of prometheus metrics
	NamespacePrefix = "keld"
)

var (
	// ServerNamespace is the prometheus namespace of connection and
	// command related operations
	ServerNamespace = metrics.NewNamespace(NamespacePrefix, "server", nil)

	// StorageNamespace is the prometheus namespace of storage related
	// operations
	StorageNamespace = metrics.NewNamespace(NamespacePrefix, "storage", nil)
)
