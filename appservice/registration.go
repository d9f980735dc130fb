// Package appservice implements the homeserver-facing side of an
// application service: registration handling and the HTTP gateway the
// homeserver pushes transactions to.
package appservice

import (
	"os"
	"regexp"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v2"
)

// Namespace claims a pattern of user ids, aliases or room ids. Exclusive
// namespaces may only be used by this service.
type Namespace struct {
	Exclusive bool   `yaml:"exclusive"`
	Regex     string `yaml:"regex"`

	compiled *regexp.Regexp
}

// Namespaces groups the patterns a service claims, per resource kind.
type Namespaces struct {
	Users   []Namespace `yaml:"users,omitempty"`
	Aliases []Namespace `yaml:"aliases,omitempty"`
	Rooms   []Namespace `yaml:"rooms,omitempty"`
}

// Registration is the service's registration document, shared with the
// homeserver. ASToken authenticates us to the homeserver; HSToken
// authenticates the homeserver's calls to our gateway. Immutable after
// load.
type Registration struct {
	ID              string     `yaml:"id"`
	URL             string     `yaml:"url"`
	ASToken         string     `yaml:"as_token"`
	HSToken         string     `yaml:"hs_token"`
	SenderLocalpart string     `yaml:"sender_localpart"`
	RateLimited     *bool      `yaml:"rate_limited,omitempty"`
	Namespaces      Namespaces `yaml:"namespaces,omitempty"`
}

// LoadRegistration reads and validates a registration document from a
// YAML file, compiling its namespace patterns.
func LoadRegistration(path string) (*Registration, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read registration")
	}
	return ParseRegistration(data)
}

// ParseRegistration parses a registration document from YAML.
func ParseRegistration(data []byte) (*Registration, error) {
	reg := &Registration{}
	if err := yaml.Unmarshal(data, reg); err != nil {
		return nil, errors.Wrap(err, "parse registration")
	}

	if reg.ID == "" || reg.ASToken == "" || reg.HSToken == "" {
		return nil, errors.New("registration needs id, as_token and hs_token")
	}

	for _, set := range [][]Namespace{reg.Namespaces.Users, reg.Namespaces.Aliases, reg.Namespaces.Rooms} {
		for i := range set {
			compiled, err := regexp.Compile(set[i].Regex)
			if err != nil {
				return nil, errors.Wrapf(err, "namespace pattern %q", set[i].Regex)
			}
			set[i].compiled = compiled
		}
	}

	return reg, nil
}

// Save writes the registration back out as YAML, for handing to the
// homeserver admin.
func (r *Registration) Save(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return errors.Wrap(err, "marshal registration")
	}
	return errors.Wrap(os.WriteFile(path, data, 0o600), "write registration")
}

// MatchesUser reports whether a user id falls inside the service's user
// namespaces.
func (r *Registration) MatchesUser(userID string) bool {
	return matches(r.Namespaces.Users, userID)
}

// MatchesAlias reports whether an alias falls inside the service's alias
// namespaces.
func (r *Registration) MatchesAlias(alias string) bool {
	return matches(r.Namespaces.Aliases, alias)
}

// MatchesRoom reports whether a room id falls inside the service's room
// namespaces.
func (r *Registration) MatchesRoom(roomID string) bool {
	return matches(r.Namespaces.Rooms, roomID)
}

func matches(set []Namespace, value string) bool {
	for i := range set {
		if set[i].compiled != nil && set[i].compiled.MatchString(value) {
			return true
		}
	}
	return false
}
