package keychain

import (
	"testing"

	"github.com/99designs/keyring"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManagerRoundTrip(t *testing.T) {
	m := New(keyring.NewArrayKeyring(nil))

	_, err := m.LoadToken()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.SaveToken([]byte(`{"access_token":"a"}`)))
	require.NoError(t, m.SaveAuthState([]byte(`{"logged_in":true}`)))
	require.NoError(t, m.SaveAuditDSN("postgres://u:p@localhost/audit"))

	tok, err := m.LoadToken()
	require.NoError(t, err)
	assert.JSONEq(t, `{"access_token":"a"}`, string(tok))

	dsn, err := m.LoadAuditDSN()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/audit", dsn)

	require.NoError(t, m.ClearAuth())
	_, err = m.LoadToken()
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.LoadAuthState()
	assert.ErrorIs(t, err, ErrNotFound)

	dsn, err = m.LoadAuditDSN()
	require.NoError(t, err, "ClearAuth keeps the audit DSN")
	assert.NotEmpty(t, dsn)

	require.NoError(t, m.ClearAll())
	_, err = m.LoadAuditDSN()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveMissingKey(t *testing.T) {
	m := New(keyring.NewArrayKeyring(nil))
	assert.NoError(t, m.Remove(KeyCRMToken))
	assert.NoError(t, m.ClearAll())
}

func TestEmptyValueIsNotFound(t *testing.T) {
	m := New(keyring.NewArrayKeyring([]keyring.Item{{Key: KeyAuditDSN}}))
	_, err := m.LoadAuditDSN()
	assert.ErrorIs(t, err, ErrNotFound)
}
