package datasource

import (
	"context"
	"fmt"
	"sync"
)

// Reader combines the capabilities one adapter provides.
type Reader interface {
	MetadataReader
	ConditionEvaluator
}

// AdapterInfo describes a registered adapter.
type AdapterInfo struct {
	Type        string `json:"type"`         // "postgres", "sqlserver"
	DisplayName string `json:"display_name"` // "PostgreSQL", "Microsoft SQL Server"
}

// Registration contains adapter info plus its factory. Config is the
// adapter-specific connection settings map.
type Registration struct {
	Info    AdapterInfo
	Factory func(ctx context.Context, config map[string]any) (Reader, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Registration)
)

// Register is called by each adapter's init() function. Thread-safe for
// concurrent init() calls.
func Register(reg Registration) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[reg.Info.Type] = reg
}

// RegisteredAdapters returns info for all registered adapters.
func RegisteredAdapters() []AdapterInfo {
	registryMu.RLock()
	defer registryMu.RUnlock()

	result := make([]AdapterInfo, 0, len(registry))
	for _, reg := range registry {
		result = append(result, reg.Info)
	}
	return result
}

// Open creates a Reader for the given datasource type.
func Open(ctx context.Context, dsType string, config map[string]any) (Reader, error) {
	registryMu.RLock()
	reg, ok := registry[dsType]
	registryMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("unknown datasource type %q", dsType)
	}
	return reg.Factory(ctx, config)
}
