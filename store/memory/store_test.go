package memory_test

import (
	"testing"

	"github.com/xraph/dmc/store"
	"github.com/xraph/dmc/store/memory"
	"github.com/xraph/dmc/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return memory.New() })
}
