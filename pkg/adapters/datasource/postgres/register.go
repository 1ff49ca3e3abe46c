package postgres

import (
	"context"

	"github.com/dataforge-io/profiler-engine/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.Registration{
		Info: datasource.AdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
		},
		Factory: func(ctx context.Context, config map[string]any) (datasource.Reader, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewReader(ctx, cfg, nil)
		},
	})
}
