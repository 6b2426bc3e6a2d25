package domain

// Credentials is an API key pair supplied per call. It is never persisted
// by the exchange core and the secret must never reach logs.
type Credentials struct {
	APIKey    string
	APISecret string
}

// MaskedKey returns a prefix...suffix form of the API key safe for diagnostics.
func (c Credentials) MaskedKey() string {
	if len(c.APIKey) <= 8 {
		return "****"
	}
	return c.APIKey[:4] + "..." + c.APIKey[len(c.APIKey)-4:]
}

// String hides both key and secret so accidental %v formatting stays safe.
func (c Credentials) String() string {
	return "credentials(" + c.MaskedKey() + ")"
}
