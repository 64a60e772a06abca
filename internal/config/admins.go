package config

import (
	"fmt"
	"os"
	"strings"

	"sigs.k8s.io/yaml"
)

// AdminFile is the on-disk allowlist format:
//
//	admins:
//	  - owner@example.com
type AdminFile struct {
	Admins []string `json:"admins"`
}

// AdminAllowlist merges ADMIN_EMAILS with the entries of ADMIN_FILE,
// normalized and de-duplicated. It is read once at startup.
func (c *Config) AdminAllowlist() ([]string, error) {
	emails := append([]string(nil), c.AdminEmails...)

	if c.AdminFile != "" {
		raw, err := os.ReadFile(c.AdminFile)
		if err != nil {
			return nil, fmt.Errorf("reading admin file: %w", err)
		}
		var f AdminFile
		if err := yaml.UnmarshalStrict(raw, &f); err != nil {
			return nil, fmt.Errorf("parsing admin file %s: %w", c.AdminFile, err)
		}
		emails = append(emails, f.Admins...)
	}

	seen := make(map[string]struct{}, len(emails))
	out := make([]string, 0, len(emails))
	for _, e := range emails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if _, dup := seen[e]; dup {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}
