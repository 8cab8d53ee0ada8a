package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_GeneratesAndPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	id, regenerated, err := Load(path)
	require.NoError(t, err)
	require.False(t, regenerated)
	require.Len(t, []byte(id.PublicKey), ed25519.PublicKeySize)
	require.Len(t, id.DeviceID, 64)
	require.Equal(t, DeviceIDFromPublicKey(id.PublicKey), id.DeviceID)

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())
	}
}

func TestLoad_ReusesExistingIdentity(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, _, err := Load(path)
	require.NoError(t, err)

	second, regenerated, err := Load(path)
	require.NoError(t, err)
	require.False(t, regenerated)
	require.Equal(t, first.DeviceID, second.DeviceID)
	require.Equal(t, first.PublicKey, second.PublicKey)
	require.Equal(t, first.PrivateKey, second.PrivateKey)
}

func TestLoad_RegeneratesOnCorruption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")

	first, _, err := Load(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0600))

	second, regenerated, err := Load(path)
	require.NoError(t, err)
	require.True(t, regenerated)
	require.NotEqual(t, first.DeviceID, second.DeviceID)

	// The regenerated identity must itself be loadable.
	third, regenerated, err := Load(path)
	require.NoError(t, err)
	require.False(t, regenerated)
	require.Equal(t, second.DeviceID, third.DeviceID)
}

func TestLoad_RegeneratesOnSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"deviceId":"x"}`), 0600))

	_, regenerated, err := Load(path)
	require.NoError(t, err)
	require.True(t, regenerated)
}

func TestDeviceID_DeterministicAndDistinct(t *testing.T) {
	pubA, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	require.Equal(t, DeviceIDFromPublicKey(pubA), DeviceIDFromPublicKey(pubA))
	require.NotEqual(t, DeviceIDFromPublicKey(pubA), DeviceIDFromPublicKey(pubB))
}

func TestSign_VerifiesWithPublicKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	id, _, err := Load(path)
	require.NoError(t, err)

	msg := []byte("v1|payload")
	sig := id.Sign(msg)
	require.True(t, ed25519.Verify(id.PublicKey, msg, sig))
}
