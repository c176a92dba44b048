package backend

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"medichat/internal/domain"
)

// credentialFile is the on-disk shape of the stored bearer credential.
type credentialFile struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// FileTokenSource loads a bearer token from a JSON file and answers
// credential-validity checks for the coordinator. Token issuance and renewal
// are external concerns; this source only reads what the login flow wrote.
type FileTokenSource struct {
	mu     sync.RWMutex
	path   string
	cred   credentialFile
	loaded bool
	logger *slog.Logger
}

var _ domain.CredentialSource = (*FileTokenSource)(nil)

// NewFileTokenSource creates a source over path and attempts an initial
// load. A missing file is not an error; Valid simply reports false until
// Reload finds one.
func NewFileTokenSource(path string, logger *slog.Logger) *FileTokenSource {
	if logger == nil {
		logger = slog.Default()
	}
	s := &FileTokenSource{path: path, logger: logger}
	if err := s.Reload(); err != nil && !os.IsNotExist(err) {
		logger.Warn("credential load failed", "path", path, "error", err)
	}
	return s
}

// Reload re-reads the credential file.
func (s *FileTokenSource) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var cred credentialFile
	if err := json.Unmarshal(data, &cred); err != nil {
		return domain.NewDomainError("auth.Reload", domain.ErrInvalidInput, err.Error())
	}

	s.mu.Lock()
	s.cred = cred
	s.loaded = true
	s.mu.Unlock()
	return nil
}

// Valid implements domain.CredentialSource. A zero expiry means the token
// does not expire.
func (s *FileTokenSource) Valid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.loaded || s.cred.AccessToken == "" {
		return false
	}
	return s.cred.ExpiresAt.IsZero() || time.Now().Before(s.cred.ExpiresAt)
}

// Token returns the bearer token when one is usable.
func (s *FileTokenSource) Token() (string, bool) {
	if !s.Valid() {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.AccessToken, true
}
