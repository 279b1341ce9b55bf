package auth

import (
	"crypto/x509"

	"github.com/go-git/go-git/v5/plumbing/transport"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	cryptossh "golang.org/x/crypto/ssh"

	"github.com/fennwick/scriv/internal/common"
	"github.com/fennwick/scriv/internal/errors"
)

// sshUser is the remote user for ssh transports; git hosting services
// universally expect "git".
const sshUser = "git"

// Mechanism names one of the two supported credential mechanisms.
type Mechanism int

const (
	// MechanismAgent delegates signing to the platform's running ssh agent.
	MechanismAgent Mechanism = iota

	// MechanismKeyFile reads key material from an on-disk file, optionally
	// decrypted with a passphrase.
	MechanismKeyFile
)

// String returns the user-facing mechanism name.
func (m Mechanism) String() string {
	switch m {
	case MechanismAgent:
		return "ssh-agent"
	case MechanismKeyFile:
		return "ssh-key"
	default:
		return "unknown"
	}
}

// Method is a tagged variant over the two credential mechanisms. Exactly one
// is active per run; the configuration layer rejects supplying both.
type Method struct {
	Mechanism  Mechanism
	KeyPath    string
	Passphrase string
}

// AgentMethod selects agent-based authentication.
func AgentMethod() Method {
	return Method{Mechanism: MechanismAgent}
}

// KeyFileMethod selects key-file authentication with an optional passphrase.
func KeyFileMethod(path, passphrase string) Method {
	return Method{Mechanism: MechanismKeyFile, KeyPath: path, Passphrase: passphrase}
}

// AgentDial is the injected capability for reaching the platform's running
// ssh agent. It exists so tests can substitute a double instead of scriv
// performing an ambient global lookup.
type AgentDial func(user string) (transport.AuthMethod, error)

func defaultAgentDial(user string) (transport.AuthMethod, error) {
	return gitssh.NewSSHAgentAuth(user)
}

// Resolver turns a Method into a usable transport credential. Resolution is
// performed lazily by the caller, only when a push is actually about to
// occur. A resolver never retries with an alternate mechanism.
type Resolver struct {
	dial   AgentDial
	logger common.Logger
}

// NewResolver creates a Resolver backed by the real ssh agent.
func NewResolver(logger common.Logger) *Resolver {
	return NewResolverWithDial(defaultAgentDial, logger)
}

// NewResolverWithDial creates a Resolver with a custom agent capability.
func NewResolverWithDial(dial AgentDial, logger common.Logger) *Resolver {
	return &Resolver{dial: dial, logger: logger}
}

// Resolve derives an authentication handle from the configured mechanism.
func (r *Resolver) Resolve(method Method) (transport.AuthMethod, error) {
	switch method.Mechanism {
	case MechanismAgent:
		r.logger.Info("Resolving credentials via ssh agent")
		handle, err := r.dial(sshUser)
		if err != nil {
			return nil, errors.NewAuthError(method.Mechanism.String(),
				errors.Wrap(errors.ErrAgentUnavailable, err.Error()))
		}
		return handle, nil

	case MechanismKeyFile:
		r.logger.Info("Resolving credentials from key file %s", method.KeyPath)
		handle, err := gitssh.NewPublicKeysFromFile(sshUser, method.KeyPath, method.Passphrase)
		if err != nil {
			return nil, errors.NewAuthError(method.Mechanism.String(),
				classifyKeyError(err))
		}
		return handle, nil

	default:
		return nil, errors.NewAuthError("unknown",
			errors.Wrap(errors.ErrInvalidConfiguration, "unsupported authentication mechanism"))
	}
}

// classifyKeyError maps key-parsing failures onto the credential error
// taxonomy: an encrypted key without a passphrase requires one; a supplied
// passphrase that does not decrypt the key is invalid. Anything else (missing
// file, malformed key) passes through untouched.
func classifyKeyError(err error) error {
	var missing *cryptossh.PassphraseMissingError
	if errors.As(err, &missing) {
		return errors.Wrap(errors.ErrPassphraseRequired, err.Error())
	}
	if errors.Is(err, x509.IncorrectPasswordError) {
		return errors.Wrap(errors.ErrInvalidPassphrase, err.Error())
	}
	return err
}
