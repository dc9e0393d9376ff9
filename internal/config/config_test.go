package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultsWhenAbsent(t *testing.T) {
	fsys := afero.NewMemMapFs()

	doc, err := Load(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)
	assert.Equal(t, DefaultProxyPort, doc.ProxyPort)
	assert.Equal(t, DefaultAPIPort, doc.APIPort)
	assert.Equal(t, DefaultPortMin, doc.PortMin)
	assert.Equal(t, DefaultPortMax, doc.PortMax)
	assert.Equal(t, DefaultMountPoint, doc.MountPoint)
	assert.Equal(t, ApproachNewDisk, doc.Approach)

	exists, err := afero.Exists(fsys, "/etc/dbranch/config.json")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSaveLoadRoundTripsByteIdentical(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := "/etc/dbranch/config.json"

	original := defaultDocument()
	original.Name = "demo"
	original.PostgresConfig.Database = "appdb"
	require.NoError(t, Save(fsys, path, &original))
	first, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)

	loaded, err := Load(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, original.Name, loaded.Name)
	assert.Equal(t, original.PostgresConfig, loaded.PostgresConfig)
	assert.Equal(t, original.Approach, loaded.Approach)

	require.NoError(t, Save(fsys, path, loaded))
	second, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))
	reloaded, err := Load(fsys, path)
	require.NoError(t, err)
	assert.Equal(t, loaded, reloaded)
}

func TestLoadRejectsUnknownApproachSpelling(t *testing.T) {
	fsys := afero.NewMemMapFs()
	path := "/etc/dbranch/config.json"
	require.NoError(t, afero.WriteFile(fsys, path, []byte(`{"approach":"BOGUS"}`), 0o644))

	_, err := Load(fsys, path)
	require.Error(t, err)
}

func TestSetActiveBranchMainUnsets(t *testing.T) {
	doc := defaultDocument()
	doc.AddBranch(Branch{Name: "main", IsMain: true, Port: 7000})
	doc.AddBranch(Branch{Name: "feature-x", Port: 7001})

	require.NoError(t, doc.SetActiveBranch("feature-x"))
	require.NotNil(t, doc.ActiveBranch)
	assert.Equal(t, "feature-x", doc.ActiveBranchName())

	require.NoError(t, doc.SetActiveBranch("main"))
	assert.Nil(t, doc.ActiveBranch)
	assert.Equal(t, "main", doc.ActiveBranchName())
}

func TestSetActiveBranchRejectsUnknownBranch(t *testing.T) {
	doc := defaultDocument()
	err := doc.SetActiveBranch("ghost")
	require.Error(t, err)
}

func TestRemoveBranchDropsByName(t *testing.T) {
	doc := defaultDocument()
	doc.AddBranch(Branch{Name: "main", IsMain: true})
	doc.AddBranch(Branch{Name: "feature-x"})

	doc.RemoveBranch("feature-x")
	assert.Len(t, doc.Branches, 1)
	_, found := doc.FindBranch("feature-x")
	assert.False(t, found)
}

func TestGetValidPortFindsFreePort(t *testing.T) {
	port, err := GetValidPort(20000, 20010)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, port, 20000)
	assert.LessOrEqual(t, port, 20010)
}

func TestGetValidPortExhaustedRangeErrors(t *testing.T) {
	_, err := GetValidPort(1, 0)
	require.Error(t, err)
}
