package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	ErrUnknownAccount = errors.New("unknown account")
	ErrDuplicateID    = errors.New("duplicate roster id")
)

// Credential is one roster entry. Either Password or PasswordHash is set.
type Credential struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Password     string `yaml:"password"`
	PasswordHash string `yaml:"password_hash"`
}

type rosterFile struct {
	Teacher  Credential   `yaml:"teacher"`
	Students []Credential `yaml:"students"`
}

// Roster is the fixed class list: students plus one teacher account.
type Roster struct {
	teacher  Credential
	students map[string]Credential
	order    []string
}

// LoadRoster reads a roster YAML file.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roster: %w", err)
	}
	return ParseRoster(data)
}

// ParseRoster decodes roster YAML.
func ParseRoster(data []byte) (*Roster, error) {
	var f rosterFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode roster: %w", err)
	}
	return NewRoster(f.Teacher, f.Students)
}

// NewRoster builds a roster from credentials. A password that already looks like a bcrypt hash is
// treated as one.
func NewRoster(teacher Credential, students []Credential) (*Roster, error) {
	r := &Roster{students: make(map[string]Credential, len(students))}

	teacher = normalizeCredential(teacher)
	if teacher.ID != "" {
		r.teacher = teacher
	}
	for _, s := range students {
		s = normalizeCredential(s)
		if s.ID == "" {
			return nil, fmt.Errorf("roster: student without id")
		}
		if _, dup := r.students[s.ID]; dup || s.ID == r.teacher.ID {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, s.ID)
		}
		r.students[s.ID] = s
		r.order = append(r.order, s.ID)
	}
	return r, nil
}

func normalizeCredential(c Credential) Credential {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.PasswordHash == "" && isBcryptHash(c.Password) {
		c.PasswordHash, c.Password = c.Password, ""
	}
	return c
}

// Lookup returns the account for id.
func (r *Roster) Lookup(id string) (Credential, string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Credential{}, "", ErrUnknownAccount
	}
	if r.teacher.ID != "" && id == r.teacher.ID {
		return r.teacher, RoleTeacher, nil
	}
	if c, ok := r.students[id]; ok {
		return c, RoleStudent, nil
	}
	return Credential{}, "", ErrUnknownAccount
}

// Students returns student ids in roster order.
func (r *Roster) Students() []string {
	return append([]string(nil), r.order...)
}
