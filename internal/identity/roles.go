package identity

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Role is the authorization tier derived from the account's email on every
// login. It is never sticky: changing the allow-lists changes the role at the
// next login.
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleMember Role = "MEMBER"
	RoleGuest  Role = "GUEST"
)

// RoleConfig holds the admin and guest allow-lists. Entries in the email
// lists match exactly (case-insensitive); entries in the domain lists match
// the part after '@'.
type RoleConfig struct {
	AdminEmails  []string `yaml:"admin_emails"`
	AdminDomains []string `yaml:"admin_domains"`
	GuestEmails  []string `yaml:"guest_emails"`
	GuestDomains []string `yaml:"guest_domains"`
}

// LoadRoleConfig parses the YAML allow-list file. A missing file is not an
// error: it yields an empty config under which every login is a member.
func LoadRoleConfig(path string) (*RoleConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &RoleConfig{}, nil
		}
		return nil, fmt.Errorf("read role config: %w", err)
	}
	var cfg RoleConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse role config %q: %w", path, err)
	}
	return &cfg, nil
}

// Derive maps an email to a role. Admin matches win over guest matches;
// anything unmatched (including an empty email) is a member.
func (c *RoleConfig) Derive(email string) Role {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return RoleMember
	}
	domain := ""
	if at := strings.LastIndex(email, "@"); at >= 0 {
		domain = email[at+1:]
	}
	if containsFold(c.AdminEmails, email) || containsFold(c.AdminDomains, domain) {
		return RoleAdmin
	}
	if containsFold(c.GuestEmails, email) || containsFold(c.GuestDomains, domain) {
		return RoleGuest
	}
	return RoleMember
}

func containsFold(list []string, v string) bool {
	if v == "" {
		return false
	}
	for _, item := range list {
		if strings.EqualFold(strings.TrimSpace(item), v) {
			return true
		}
	}
	return false
}
