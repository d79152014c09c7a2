package auth

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/ssh"

	"pkt.systems/paneflow/internal/appconfig"
	"pkt.systems/paneflow/schema"
	"pkt.systems/pslog"
)

// User represents a stored user account.
type User struct {
	Username       string   `json:"username"`
	PasswordHash   string   `json:"password_hash"`
	TOTPSecret     string   `json:"totp_secret"`
	AuthorizedKeys []string `json:"authorized_keys,omitempty"`
}

// Store manages users stored on disk. The file is re-read whenever its
// stat signature changes, so external edits take effect without restart.
type Store struct {
	path      string
	mu        sync.RWMutex
	users     map[string]User
	fileState fileState
	log       pslog.Logger
}

// NewStore loads or seeds the user store. logger may be nil.
func NewStore(path string, seeds []appconfig.SeedUser, logger pslog.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("user file path is required")
	}
	if logger != nil {
		logger = logger.With("user_file", path)
	}
	store := &Store{
		path:  path,
		users: make(map[string]User),
		log:   logger,
	}
	if err := store.ensureFile(seeds); err != nil {
		return nil, err
	}
	if err := store.loadFromDisk(); err != nil {
		return nil, err
	}
	return store, nil
}

func (s *Store) warn(msg string, args ...any) {
	if s.log != nil {
		s.log.Warn(msg, args...)
	}
}

func (s *Store) info(msg string, args ...any) {
	if s.log != nil {
		s.log.Info(msg, args...)
	}
}

// Authenticate verifies username, password, and totp.
func (s *Store) Authenticate(username, password, totpCode string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return errors.New("invalid credentials")
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return errors.New("invalid totp")
	}
	return nil
}

// ValidateTOTP verifies the stored TOTP secret for a user.
func (s *Store) ValidateTOTP(username string, totpCode string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.RLock()
	user, ok := s.users[normalized]
	s.mu.RUnlock()
	if !ok {
		return errors.New("invalid credentials")
	}
	if !totp.Validate(totpCode, user.TOTPSecret) {
		return errors.New("invalid totp")
	}
	return nil
}

// AddAuthorizedKey adds a login public key for a user and returns its 1-based index.
func (s *Store) AddAuthorizedKey(userID schema.UserID, pubKey string) (int, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return 0, err
	}
	username, err := validateUsername(string(userID))
	if err != nil {
		return 0, err
	}
	normalized, parsed, err := parseAuthorizedKey(pubKey)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return 0, errors.New("user not found")
	}
	for idx, existing := range user.AuthorizedKeys {
		if keyEqual(existing, parsed) {
			return idx + 1, errors.New("authorized key already exists")
		}
	}
	user.AuthorizedKeys = append(user.AuthorizedKeys, normalized)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		s.warn("auth key add failed", "user", username, "err", err)
		return 0, err
	}
	s.info("auth key added", "user", username, "id", len(user.AuthorizedKeys))
	return len(user.AuthorizedKeys), nil
}

// ListAuthorizedKeys returns the user's login public keys.
func (s *Store) ListAuthorizedKeys(userID schema.UserID) ([]string, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return nil, err
	}
	username, err := validateUsername(string(userID))
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return nil, errors.New("user not found")
	}
	return append([]string{}, user.AuthorizedKeys...), nil
}

// RemoveAuthorizedKey removes the login public key at the provided 1-based index.
func (s *Store) RemoveAuthorizedKey(userID schema.UserID, index int) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	username, err := validateUsername(string(userID))
	if err != nil {
		return err
	}
	if index <= 0 {
		return errors.New("authorized key id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[username]
	if !ok {
		return errors.New("user not found")
	}
	if index > len(user.AuthorizedKeys) {
		return errors.New("authorized key id out of range")
	}
	user.AuthorizedKeys = append(user.AuthorizedKeys[:index-1], user.AuthorizedKeys[index:]...)
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		s.warn("auth key remove failed", "user", username, "err", err)
		return err
	}
	s.info("auth key removed", "user", username, "id", index)
	return nil
}

// HasAuthorizedKey reports whether the provided key is authorized for the user.
func (s *Store) HasAuthorizedKey(userID schema.UserID, key ssh.PublicKey) (bool, error) {
	if err := s.refreshIfNeeded(); err != nil {
		return false, err
	}
	username, err := validateUsername(string(userID))
	if err != nil {
		return false, err
	}
	s.mu.RLock()
	user, ok := s.users[username]
	s.mu.RUnlock()
	if !ok {
		return false, errors.New("user not found")
	}
	for _, raw := range user.AuthorizedKeys {
		if keyEqual(raw, key) {
			return true, nil
		}
	}
	return false, nil
}

// LoadUsers returns a snapshot of users.
func (s *Store) LoadUsers() []User {
	if err := s.refreshIfNeeded(); err != nil {
		s.warn("auth store refresh failed", "err", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users
}

// AddUser inserts a new user and persists the store.
func (s *Store) AddUser(user User) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	username, err := validateUsername(user.Username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[username]; ok {
		return errors.New("user already exists")
	}
	user.Username = username
	s.users[username] = user
	if err := s.saveLocked(); err != nil {
		s.warn("auth user add failed", "user", username, "err", err)
		return err
	}
	s.info("auth user added", "user", username)
	return nil
}

// UpdatePassword replaces the stored password hash.
func (s *Store) UpdatePassword(username, passwordHash string) error {
	if strings.TrimSpace(passwordHash) == "" {
		return errors.New("password hash is required")
	}
	return s.updateUser(username, "auth password updated", func(user *User) {
		user.PasswordHash = passwordHash
	})
}

// UpdateTOTP replaces the stored TOTP secret.
func (s *Store) UpdateTOTP(username, secret string) error {
	if strings.TrimSpace(secret) == "" {
		return errors.New("totp secret is required")
	}
	return s.updateUser(username, "auth totp updated", func(user *User) {
		user.TOTPSecret = secret
	})
}

func (s *Store) updateUser(username, okMsg string, mutate func(*User)) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[normalized]
	if !ok {
		return errors.New("user not found")
	}
	mutate(&user)
	s.users[normalized] = user
	if err := s.saveLocked(); err != nil {
		s.warn("auth user update failed", "user", normalized, "err", err)
		return err
	}
	s.info(okMsg, "user", normalized)
	return nil
}

// DeleteUser removes a user.
func (s *Store) DeleteUser(username string) error {
	if err := s.refreshIfNeeded(); err != nil {
		return err
	}
	normalized, err := validateUsername(username)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[normalized]; !ok {
		return errors.New("user not found")
	}
	delete(s.users, normalized)
	if err := s.saveLocked(); err != nil {
		s.warn("auth user delete failed", "user", normalized, "err", err)
		return err
	}
	s.info("auth user deleted", "user", normalized)
	return nil
}

func (s *Store) ensureFile(seeds []appconfig.SeedUser) error {
	if _, statErr := os.Stat(s.path); statErr == nil {
		return nil
	} else if !os.IsNotExist(statErr) {
		s.warn("auth store init failed", "err", statErr)
		return statErr
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.warn("auth store init failed", "err", err)
		return err
	}
	users := make([]User, 0, len(seeds))
	for _, seed := range seeds {
		if _, err := validateUsername(seed.Username); err != nil {
			return err
		}
		users = append(users, User{
			Username:     seed.Username,
			PasswordHash: seed.PasswordHash,
			TOTPSecret:   seed.TOTPSecret,
		})
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		s.warn("auth store init failed", "err", err)
		return err
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		s.warn("auth store init failed", "err", err)
		return err
	}
	s.info("auth store initialized", "users", len(users))
	return nil
}

func validateUsername(username string) (string, error) {
	if err := schema.ValidateUserID(schema.UserID(username)); err != nil {
		return "", errors.New("invalid username")
	}
	return username, nil
}

func (s *Store) saveLocked() error {
	users := make([]User, 0, len(s.users))
	keys := make([]string, 0, len(s.users))
	for key := range s.users {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		users = append(users, s.users[key])
	}
	data, err := json.MarshalIndent(users, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "users-*.json")
	if err != nil {
		return err
	}
	cleanup := func(err error) error {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		return cleanup(err)
	}
	if err := tmp.Sync(); err != nil {
		return cleanup(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return err
	}
	if info, err := os.Stat(s.path); err == nil {
		s.fileState = fileStateFromInfo(info)
	} else {
		s.warn("auth store save failed to stat", "err", err)
	}
	if s.log != nil {
		s.log.Debug("auth store save ok", "users", len(users))
	}
	return nil
}

type fileState struct {
	modTime time.Time
	size    int64
	inode   uint64
	dev     uint64
}

func fileStateFromInfo(info os.FileInfo) fileState {
	state := fileState{
		modTime: info.ModTime(),
		size:    info.Size(),
	}
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		state.inode = stat.Ino
		state.dev = stat.Dev
	}
	return state
}

func (s fileState) equal(other fileState) bool {
	return s.size == other.size &&
		s.modTime.Equal(other.modTime) &&
		s.inode == other.inode &&
		s.dev == other.dev
}

func (s *Store) refreshIfNeeded() error {
	info, err := os.Stat(s.path)
	if err != nil {
		s.warn("auth store stat failed", "err", err)
		return err
	}
	latest := fileStateFromInfo(info)
	s.mu.RLock()
	current := s.fileState
	s.mu.RUnlock()
	if current.equal(latest) {
		return nil
	}
	return s.loadFromDisk()
}

func (s *Store) loadFromDisk() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.warn("auth store load failed", "err", err)
		return err
	}
	var users []User
	if err := json.Unmarshal(data, &users); err != nil {
		s.warn("auth store load failed", "err", err)
		return err
	}
	info, err := os.Stat(s.path)
	if err != nil {
		s.warn("auth store load failed", "err", err)
		return err
	}
	next := make(map[string]User, len(users))
	for _, user := range users {
		if _, err := validateUsername(user.Username); err != nil {
			s.warn("auth store load failed", "err", err)
			return err
		}
		next[user.Username] = user
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = next
	s.fileState = fileStateFromInfo(info)
	if s.log != nil {
		s.log.Debug("auth store load ok", "users", len(users))
	}
	return nil
}

func parseAuthorizedKey(raw string) (string, ssh.PublicKey, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", nil, errors.New("pubkey is required")
	}
	key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(trimmed))
	if err != nil {
		return "", nil, errors.New("invalid pubkey")
	}
	return trimmed, key, nil
}

func keyEqual(raw string, key ssh.PublicKey) bool {
	parsed, _, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(raw)))
	if err != nil {
		return false
	}
	return bytes.Equal(parsed.Marshal(), key.Marshal())
}
