package memory_test

import (
	"testing"

	"github.com/couchcryptid/observation-series-service/internal/adapter/memory"
	"github.com/couchcryptid/observation-series-service/internal/adapter/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) storetest.Store {
		return memory.NewStore()
	})
}
