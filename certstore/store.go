// Package certstore keeps signing identities on the local filesystem.
//
// Each identity lives in its own directory as <dir>/<name>/identity.json
// (mode 0600). The file holds the identity envelope plus the certificate serial
// and subject in clear text, so encrypted identities can be listed and found by
// serial without their password.
package certstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"xdao.co/signet/identity"
)

const fileName = "identity.json"

// ErrNotFound is returned when no stored identity matches.
var ErrNotFound = errors.New("certstore: identity not found")

// Store is a directory of identities.
type Store struct {
	Directory string
}

// Entry describes one stored identity.
type Entry struct {
	Name          string `json:"name"`
	Serial        string `json:"serial"`
	Subject       string `json:"subject"`
	Provider      string `json:"provider"`
	Encrypted     bool   `json:"encrypted"`
	HasPrivateKey bool   `json:"has_private_key"`
}

type storedIdentity struct {
	Serial   string             `json:"serial"`
	Subject  string             `json:"subject"`
	Envelope *identity.Envelope `json:"envelope"`
}

// DefaultDirectory is ~/.signet/identities.
func DefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".signet", "identities"), nil
}

// Open returns a store rooted at directory, or at DefaultDirectory when empty.
// The directory is created on first Save.
func Open(directory string) (*Store, error) {
	if directory == "" {
		var err error
		directory, err = DefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &Store{Directory: directory}, nil
}

func CheckName(name string) error {
	if name == "" {
		return errors.New("name cannot be empty")
	}
	for _, char := range name {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' || char == '.' {
			continue
		}
		return fmt.Errorf("invalid character %q in name", char)
	}
	if strings.Trim(name, ".") == "" {
		return fmt.Errorf("invalid name %q", name)
	}
	return nil
}

func (s *Store) pathFor(name string) string {
	return filepath.Join(s.Directory, name, fileName)
}

// Save writes id under name. A non-empty password stores a PKCS#12 encrypted
// envelope; otherwise the certificate and key are stored in the clear.
func (s *Store) Save(name string, id *identity.Identity, password string, overwrite bool) (string, error) {
	if err := CheckName(name); err != nil {
		return "", err
	}
	env, err := id.Export(password, password != "")
	if err != nil {
		return "", err
	}
	b, err := json.MarshalIndent(storedIdentity{
		Serial:   id.SerialNumber(),
		Subject:  id.Certificate().Subject.String(),
		Envelope: env,
	}, "", "  ")
	if err != nil {
		return "", err
	}

	path := s.pathFor(name)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return "", err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o600)
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.Write(append(b, '\n')); err != nil {
		return "", err
	}
	return path, file.Close()
}

func (s *Store) read(name string) (*storedIdentity, error) {
	if err := CheckName(name); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(s.pathFor(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, err
	}
	var st storedIdentity
	if err := json.Unmarshal(b, &st); err != nil {
		return nil, fmt.Errorf("certstore: %s: %w", name, err)
	}
	if st.Envelope == nil {
		return nil, fmt.Errorf("certstore: %s: missing envelope", name)
	}
	return &st, nil
}

// Load opens the identity stored under name.
func (s *Store) Load(name, password string) (*identity.Identity, error) {
	st, err := s.read(name)
	if err != nil {
		return nil, err
	}
	id, err := st.Envelope.Open(password)
	if err != nil {
		return nil, err
	}
	if st.Serial != "" && st.Serial != id.SerialNumber() {
		return nil, fmt.Errorf("certstore: %s: serial %s does not match certificate %s", name, st.Serial, id.SerialNumber())
	}
	return id, nil
}

// FindBySerial returns the first identity (by name) whose certificate serial
// matches serial. Serials compare as lowercase hex.
func (s *Store) FindBySerial(serial, password string) (*identity.Identity, string, error) {
	want := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(serial), "0x"))
	entries, err := s.List()
	if err != nil {
		return nil, "", err
	}
	for _, e := range entries {
		if e.Serial != want {
			continue
		}
		id, err := s.Load(e.Name, password)
		if err != nil {
			return nil, "", err
		}
		return id, e.Name, nil
	}
	return nil, "", fmt.Errorf("%w: serial %s", ErrNotFound, serial)
}

// List returns the stored identities sorted by name. Directories without a
// readable identity file are skipped.
func (s *Store) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(s.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range dirEntries {
		if entry.IsDir() && CheckName(entry.Name()) == nil {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	var result []Entry
	for _, name := range names {
		st, err := s.read(name)
		if err != nil {
			continue
		}
		result = append(result, Entry{
			Name:          name,
			Serial:        st.Serial,
			Subject:       st.Subject,
			Provider:      st.Envelope.Provider,
			Encrypted:     st.Envelope.Encrypted,
			HasPrivateKey: st.Envelope.HasPrivateKey,
		})
	}
	return result, nil
}

// Remove deletes the identity stored under name.
func (s *Store) Remove(name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	if _, err := os.Stat(s.pathFor(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return err
	}
	return os.RemoveAll(filepath.Join(s.Directory, name))
}
