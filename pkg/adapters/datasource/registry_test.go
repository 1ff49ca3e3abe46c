package datasource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegistry_UnknownType(t *testing.T) {
	_, err := Open(context.Background(), "oracle", map[string]any{})
	assert.ErrorContains(t, err, `unknown datasource type "oracle"`)
}

func TestRegistry_RegisterAndList(t *testing.T) {
	Register(Registration{
		Info: AdapterInfo{Type: "fake", DisplayName: "Fake"},
		Factory: func(ctx context.Context, config map[string]any) (Reader, error) {
			return nil, nil
		},
	})

	var found bool
	for _, info := range RegisteredAdapters() {
		if info.Type == "fake" {
			found = true
		}
	}
	assert.True(t, found)
}
