package store

import "testing"

func TestMemoryStoreContract(t *testing.T) {
	runContractTests(t, NewMemory())
}
