package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSchemaMismatch(t *testing.T) {
	err := &SchemaMismatchError{
		ModuleName: "products",
		RemoteHash: "abc",
		LocalHash:  "def",
		Phase:      "SYNC",
	}

	assert.True(t, IsSchemaMismatch(err))
	assert.True(t, IsSchemaMismatch(fmt.Errorf("module skipped: %w", err)), "wrapped errors are detected")
	assert.False(t, IsSchemaMismatch(fmt.Errorf("unrelated")))
	assert.False(t, IsSchemaMismatch(nil))
}

func TestSchemaMismatchError_Message(t *testing.T) {
	err := &SchemaMismatchError{
		ModuleName: "products",
		RemoteHash: "abc",
		LocalHash:  "def",
		Phase:      "SYNC",
	}
	assert.Equal(t,
		`remote config hash "abc" does not match local "def" - skipping SYNC of module "products"`,
		err.Error())
}
