package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreMutatePersistsAndSwaps(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	err = store.Mutate(func(d *Document) error {
		d.Name = "demo"
		d.AddBranch(Branch{Name: "main", IsMain: true, Port: 7000})
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "demo", store.Snapshot().Name)

	reopened, err := Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)
	assert.Equal(t, "demo", reopened.Snapshot().Name)
	assert.Len(t, reopened.Snapshot().Branches, 1)
}

func TestStoreMutateLeavesDocumentUnchangedOnError(t *testing.T) {
	fsys := afero.NewMemMapFs()
	store, err := Open(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)

	boom := assert.AnError
	err = store.Mutate(func(d *Document) error {
		d.Name = "should-not-stick"
		return boom
	})
	require.Error(t, err)
	assert.Empty(t, store.Snapshot().Name)
}
