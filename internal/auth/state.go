package auth

import (
	"encoding/json"
	"errors"

	"leadbot/cli/internal/keychain"
)

// State is the non-secret description of the current session, kept next
// to the token so whoami works offline.
type State struct {
	LoggedIn    bool   `json:"logged_in"`
	Account     string `json:"account"`
	InstanceURL string `json:"instance_url"`
	Sandbox     bool   `json:"sandbox"`
}

// Store persists the session. *keychain.Manager implements it.
type Store interface {
	SaveToken(data []byte) error
	LoadToken() ([]byte, error)
	SaveAuthState(data []byte) error
	LoadAuthState() ([]byte, error)
	ClearAuth() error
}

// LoadState reads the session state. Missing state yields the zero value.
func LoadState(st Store) (State, error) {
	var s State
	data, err := st.LoadAuthState()
	if errors.Is(err, keychain.ErrNotFound) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, err
	}
	return s, nil
}

// SaveState writes the session state.
func SaveState(st Store, s State) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return st.SaveAuthState(b)
}
