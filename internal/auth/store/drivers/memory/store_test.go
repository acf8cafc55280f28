package memory_test

import (
	"testing"

	"github.com/aussiebroadwan/idp/internal/auth/store"
	"github.com/aussiebroadwan/idp/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/idp/internal/auth/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.NewStore() })
}
