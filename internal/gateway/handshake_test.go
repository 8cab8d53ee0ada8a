package gateway

import (
	"crypto/ed25519"
	"encoding/base64"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roost-dev/roost/internal/identity"
)

func testIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	id, _, err := identity.Load(filepath.Join(t.TempDir(), "identity.json"))
	require.NoError(t, err)
	return id
}

func TestBuildAuthPayload_V1(t *testing.T) {
	payload := buildAuthPayload(authPayloadInput{
		deviceID:   "dev123",
		clientID:   "roost",
		clientMode: "backend",
		role:       "operator",
		scopes:     []string{"operator.read", "operator.write"},
		signedAtMs: 1700000000000,
		token:      "tok",
	})
	require.Equal(t, "v1|dev123|roost|backend|operator|operator.read,operator.write|1700000000000|tok", payload)
}

func TestBuildAuthPayload_V2AppendsNonce(t *testing.T) {
	payload := buildAuthPayload(authPayloadInput{
		deviceID:   "dev123",
		clientID:   "roost",
		clientMode: "backend",
		role:       "operator",
		scopes:     []string{"operator.read"},
		signedAtMs: 1700000000000,
		token:      "tok",
		nonce:      "n-42",
	})
	require.Equal(t, "v2|dev123|roost|backend|operator|operator.read|1700000000000|tok|n-42", payload)
}

func TestBuildAuthPayload_EmptyFieldsKeepPositions(t *testing.T) {
	payload := buildAuthPayload(authPayloadInput{
		deviceID:   "dev123",
		clientID:   "roost",
		signedAtMs: 1,
	})
	// Empty mode, role, scopes and token still occupy their slots.
	require.Equal(t, "v1|dev123|roost||||1|", payload)
}

func TestSignAuthPayload_UsesIdentityDeviceID(t *testing.T) {
	id := testIdentity(t)

	payload, sig := signAuthPayload(id, authPayloadInput{
		deviceID:   "attacker-supplied",
		clientID:   "roost",
		signedAtMs: 1,
	})
	require.Contains(t, payload, "|"+id.DeviceID+"|")
	require.True(t, ed25519.Verify(id.PublicKey, []byte(payload), sig))
}

func TestDeviceInfo_RoundTripsSignature(t *testing.T) {
	id := testIdentity(t)
	in := authPayloadInput{
		clientID:   "roost",
		clientMode: "backend",
		role:       "operator",
		scopes:     []string{"operator.read"},
		signedAtMs: 1700000000000,
		token:      "tok",
		nonce:      "n-1",
	}

	info := deviceInfo(id, in)
	require.Equal(t, id.DeviceID, info.ID)
	require.Equal(t, in.signedAtMs, info.SignedAt)
	require.Equal(t, "n-1", info.Nonce)

	pub, err := base64.RawURLEncoding.DecodeString(info.PublicKey)
	require.NoError(t, err)
	require.Equal(t, []byte(id.PublicKey), pub)

	sig, err := base64.RawURLEncoding.DecodeString(info.Signature)
	require.NoError(t, err)

	in.deviceID = id.DeviceID
	require.True(t, ed25519.Verify(pub, []byte(buildAuthPayload(in)), sig))
}
