package gateway

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/roost-dev/roost/internal/identity"
	"github.com/roost-dev/roost/internal/protocol/wire"
)

// Canonical auth payload construction.
//
// The gateway verifies the signature over the canonical string, not over the
// structured connect params, so field order and the delimiter are part of the
// protocol. The version tag binds the signature to its shape: "v2" payloads
// include a challenge nonce, "v1" payloads do not, and neither can replay as
// the other.

const (
	payloadDelimiter = "|"
	payloadVersionV1 = "v1"
	payloadVersionV2 = "v2"
)

// authPayloadInput is everything that feeds the canonical signable string.
type authPayloadInput struct {
	deviceID   string
	clientID   string
	clientMode string
	role       string
	scopes     []string
	signedAtMs int64
	token      string
	nonce      string
}

// buildAuthPayload renders the canonical string:
//
//	version|deviceId|clientId|clientMode|role|scopes(csv)|signedAtMs|token[|nonce]
func buildAuthPayload(in authPayloadInput) string {
	version := payloadVersionV1
	if in.nonce != "" {
		version = payloadVersionV2
	}
	fields := []string{
		version,
		in.deviceID,
		in.clientID,
		in.clientMode,
		in.role,
		strings.Join(in.scopes, ","),
		strconv.FormatInt(in.signedAtMs, 10),
		in.token,
	}
	if in.nonce != "" {
		fields = append(fields, in.nonce)
	}
	return strings.Join(fields, payloadDelimiter)
}

// signAuthPayload builds the canonical string and signs its UTF-8 bytes with
// the device key. Deterministic for identical inputs (Ed25519 is a
// deterministic signature scheme).
func signAuthPayload(id *identity.Identity, in authPayloadInput) (payload string, signature []byte) {
	in.deviceID = id.DeviceID
	payload = buildAuthPayload(in)
	return payload, id.Sign([]byte(payload))
}

// deviceInfo assembles the wire device block: raw key bytes, base64url
// without padding.
func deviceInfo(id *identity.Identity, in authPayloadInput) wire.DeviceInfo {
	_, sig := signAuthPayload(id, in)
	return wire.DeviceInfo{
		ID:        id.DeviceID,
		PublicKey: base64.RawURLEncoding.EncodeToString(id.PublicKey),
		Signature: base64.RawURLEncoding.EncodeToString(sig),
		SignedAt:  in.signedAtMs,
		Nonce:     in.nonce,
	}
}
