package branch

import (
	"testing"

	"github.com/joshuapassos/dbranch/internal/dbrerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBranchNameAcceptsConformingNames(t *testing.T) {
	for _, name := range []string{"main", "feature-x", "a", "pr-1234", "release-2026-08-01"} {
		assert.NoError(t, validateBranchName(name), "expected %q to be accepted", name)
	}
}

func TestValidateBranchNameRejectsPathTraversal(t *testing.T) {
	for _, name := range []string{"../etc", "a/b", "..", "/etc/passwd", ""} {
		err := validateBranchName(name)
		require.Error(t, err, "expected %q to be rejected", name)
		assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
	}
}

func TestValidateBranchNameRejectsUppercaseAndSymbols(t *testing.T) {
	for _, name := range []string{"Main", "feature_x", "feature x", "-leading-dash"} {
		err := validateBranchName(name)
		require.Error(t, err, "expected %q to be rejected", name)
		assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
	}
}

func TestValidateBranchNameRejectsOverlongNames(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	err := validateBranchName(string(long))
	require.Error(t, err)
	assert.True(t, dbrerr.Is(err, dbrerr.KindValidation))
}
