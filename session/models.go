package session

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultTokenTTL is the assumed lifetime of an access token. The provider
// does not return expires_in for the password grant.
const DefaultTokenTTL = time.Hour

// issued_at values at or above this are taken as milliseconds.
const millisThreshold = 1_000_000_000_000

// SessionToken is the provider's token response.
type SessionToken struct {
	AccessToken string `json:"access_token"`
	IdentityURL string `json:"id"`
	InstanceURL string `json:"instance_url"`
	IssuedAt    string `json:"issued_at"`
	Signature   string `json:"signature"`
	TokenType   string `json:"token_type"`
}

// IssuedTime parses IssuedAt. Seconds since the epoch are expected;
// millisecond values are recognised by magnitude.
func (t SessionToken) IssuedTime() (time.Time, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(t.IssuedAt), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing issued_at %q: %w", t.IssuedAt, err)
	}
	if n >= millisThreshold {
		return time.UnixMilli(n), nil
	}
	return time.Unix(n, 0), nil
}

// ExpiresAt returns IssuedTime plus ttl.
func (t SessionToken) ExpiresAt(ttl time.Duration) (time.Time, error) {
	issued, err := t.IssuedTime()
	if err != nil {
		return time.Time{}, err
	}
	return issued.Add(ttl), nil
}

// UserPhotos are the profile picture URLs.
type UserPhotos struct {
	Picture   string `json:"picture,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// UserProfile is the identity endpoint document. Commonly used fields are
// decoded; the full document is kept in Raw and is what gets re-encoded.
// Decoding always fills Raw, so a profile built in code comes back from
// LoadSession with Raw set to its encoded typed fields. Compare reloaded
// profiles by their typed fields, or clear Raw first. Edits to typed fields
// of a decoded profile are not re-encoded while Raw is set.
type UserProfile struct {
	UserID              string            `json:"user_id,omitempty"`
	OrganizationID      string            `json:"organization_id,omitempty"`
	Username            string            `json:"username,omitempty"`
	DisplayName         string            `json:"display_name,omitempty"`
	NickName            string            `json:"nick_name,omitempty"`
	FirstName           string            `json:"first_name,omitempty"`
	LastName            string            `json:"last_name,omitempty"`
	Email               string            `json:"email,omitempty"`
	EmailVerified       bool              `json:"email_verified,omitempty"`
	Active              bool              `json:"active,omitempty"`
	AddrStreet          *string           `json:"addr_street,omitempty"`
	AddrCity            *string           `json:"addr_city,omitempty"`
	AddrState           *string           `json:"addr_state,omitempty"`
	AddrZip             *string           `json:"addr_zip,omitempty"`
	AddrCountry         *string           `json:"addr_country,omitempty"`
	MobilePhone         *string           `json:"mobile_phone,omitempty"`
	MobilePhoneVerified bool              `json:"mobile_phone_verified,omitempty"`
	Locale              string            `json:"locale,omitempty"`
	Language            string            `json:"language,omitempty"`
	Timezone            string            `json:"timezone,omitempty"`
	UserType            string            `json:"user_type,omitempty"`
	Photos              UserPhotos        `json:"photos,omitempty"`
	URLs                map[string]string `json:"urls,omitempty"`

	Raw json.RawMessage `json:"-"`
}

type userProfileFields UserProfile

func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var f userProfileFields
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*p = UserProfile(f)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

func (p UserProfile) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	return json.Marshal(userProfileFields(p))
}

// BiometricCredential is the username/password pair cached for biometric
// re-login.
type BiometricCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// State is a snapshot of the manager's in-memory state.
type State struct {
	Authenticated    bool
	Profile          *UserProfile
	Token            *SessionToken
	BiometricEnabled bool
}

func (s State) clone() State {
	out := s
	if s.Profile != nil {
		p := *s.Profile
		out.Profile = &p
	}
	if s.Token != nil {
		t := *s.Token
		out.Token = &t
	}
	return out
}
