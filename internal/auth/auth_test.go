package auth

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/fennwick/scriv/internal/errors"
)

type testLogger struct{}

func (testLogger) Info(string, ...interface{})          {}
func (testLogger) Warning(string, ...interface{})       {}
func (testLogger) Error(string, ...interface{})         {}
func (testLogger) InfoToUser(string, ...interface{})    {}
func (testLogger) WarningToUser(string, ...interface{}) {}
func (testLogger) Success(string, ...interface{})       {}
func (testLogger) StatusMessage(string, ...interface{}) {}

type fakeCredential struct{}

func (fakeCredential) Name() string   { return "fake" }
func (fakeCredential) String() string { return "fake" }

// writeEncryptedKey generates an ed25519 key encrypted under passphrase and
// writes it in OpenSSH PEM format.
func writeEncryptedKey(t *testing.T, passphrase string) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := cryptossh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func writePlainKey(t *testing.T) string {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	block, err := cryptossh.MarshalPrivateKey(priv, "")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestMechanismString(t *testing.T) {
	assert.Equal(t, "ssh-agent", MechanismAgent.String())
	assert.Equal(t, "ssh-key", MechanismKeyFile.String())
	assert.Equal(t, "unknown", Mechanism(42).String())
}

func TestResolveAgentUsesInjectedDial(t *testing.T) {
	var dialedUser string
	dial := func(user string) (transport.AuthMethod, error) {
		dialedUser = user
		return fakeCredential{}, nil
	}

	resolver := NewResolverWithDial(dial, testLogger{})
	handle, err := resolver.Resolve(AgentMethod())
	require.NoError(t, err)
	assert.Equal(t, fakeCredential{}, handle)
	assert.Equal(t, "git", dialedUser)
}

func TestResolveAgentUnavailable(t *testing.T) {
	dial := func(string) (transport.AuthMethod, error) {
		return nil, errors.New("SSH_AUTH_SOCK not set")
	}

	resolver := NewResolverWithDial(dial, testLogger{})
	_, err := resolver.Resolve(AgentMethod())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrAgentUnavailable))

	var authErr *errors.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "ssh-agent", authErr.Mechanism)
}

func TestResolveKeyFileSucceeds(t *testing.T) {
	path := writePlainKey(t)

	resolver := NewResolver(testLogger{})
	handle, err := resolver.Resolve(KeyFileMethod(path, ""))
	require.NoError(t, err)
	assert.NotNil(t, handle)
}

func TestResolveEncryptedKeyWithPassphrase(t *testing.T) {
	path := writeEncryptedKey(t, "correct horse")

	resolver := NewResolver(testLogger{})
	handle, err := resolver.Resolve(KeyFileMethod(path, "correct horse"))
	require.NoError(t, err)
	assert.NotNil(t, handle)
}

func TestResolveEncryptedKeyWithoutPassphrase(t *testing.T) {
	path := writeEncryptedKey(t, "correct horse")

	resolver := NewResolver(testLogger{})
	_, err := resolver.Resolve(KeyFileMethod(path, ""))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrPassphraseRequired))
}

func TestResolveEncryptedKeyWithWrongPassphrase(t *testing.T) {
	path := writeEncryptedKey(t, "correct horse")

	resolver := NewResolver(testLogger{})
	_, err := resolver.Resolve(KeyFileMethod(path, "battery staple"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidPassphrase))
}

func TestResolveMissingKeyFile(t *testing.T) {
	resolver := NewResolver(testLogger{})
	_, err := resolver.Resolve(KeyFileMethod(filepath.Join(t.TempDir(), "absent"), ""))
	require.Error(t, err)

	// A missing file is neither a passphrase problem nor agent trouble.
	assert.False(t, errors.Is(err, errors.ErrPassphraseRequired))
	assert.False(t, errors.Is(err, errors.ErrInvalidPassphrase))
	assert.False(t, errors.Is(err, errors.ErrAgentUnavailable))
}

func TestClassifyKeyError(t *testing.T) {
	missing := &cryptossh.PassphraseMissingError{}
	assert.True(t, errors.Is(classifyKeyError(missing), errors.ErrPassphraseRequired))

	assert.True(t, errors.Is(classifyKeyError(x509.IncorrectPasswordError), errors.ErrInvalidPassphrase))

	other := errors.New("no such file")
	assert.Equal(t, other, classifyKeyError(other))
}
