package wire

// Connect handshake payloads (client -> gateway).

// Protocol version window offered by this client.
const (
	MinProtocol = 1
	MaxProtocol = 1
)

// ClientInfo identifies the connecting client inside connect params.
type ClientInfo struct {
	// ID is the stable client identifier (configured).
	ID string `json:"id"`
	// DisplayName is a human-readable client label.
	DisplayName string `json:"displayName"`
	// Version is the client build version.
	Version string `json:"version"`
	// Platform is the client OS/architecture string.
	Platform string `json:"platform"`
	// Mode is the client mode (e.g. "backend").
	Mode string `json:"mode"`
}

// AuthInfo carries optional shared-secret credentials on connect.
type AuthInfo struct {
	// Token is a bearer token, when configured.
	Token string `json:"token,omitempty"`
	// Password is a shared password, when configured.
	Password string `json:"password,omitempty"`
}

// DeviceInfo carries the device identity proof on connect.
//
// PublicKey and Signature are base64url-encoded without padding.
type DeviceInfo struct {
	// ID is the stable device identifier (hex SHA-256 of the raw public key).
	ID string `json:"id"`
	// PublicKey is the raw 32-byte Ed25519 public key.
	PublicKey string `json:"publicKey"`
	// Signature signs the canonical auth payload string.
	Signature string `json:"signature"`
	// SignedAt is the payload timestamp in Unix milliseconds.
	SignedAt int64 `json:"signedAt"`
	// Nonce echoes a connect.challenge nonce (v2 payloads only).
	Nonce string `json:"nonce,omitempty"`
}

// ConnectParams is the params object of the "connect" request.
type ConnectParams struct {
	MinProtocol int        `json:"minProtocol"`
	MaxProtocol int        `json:"maxProtocol"`
	Client      ClientInfo `json:"client"`
	Role        string     `json:"role"`
	Scopes      []string   `json:"scopes"`
	Auth        *AuthInfo  `json:"auth,omitempty"`
	Caps        []string   `json:"caps"`
	Device      DeviceInfo `json:"device"`
}
