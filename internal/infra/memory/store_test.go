package memory

import (
	"testing"

	"karoot/internal/app"
	"karoot/internal/infra/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) app.Store {
		return NewStore()
	})
}
