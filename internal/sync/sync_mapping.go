package sync

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	mapset "github.com/deckarep/golang-set/v2"
)

const globPrefix = "glob:"

// RoleRule pairs a path pattern with the role it assigns.
// Pattern is a regular expression matched against the full path, or a
// doublestar glob when prefixed with "glob:".
type RoleRule struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Role    string `yaml:"role" mapstructure:"role"`
}

type compiledRule struct {
	role   string
	re     *regexp.Regexp
	glob   string
	isGlob bool
}

func (r *compiledRule) match(path string) bool {
	if r.isGlob {
		ok, _ := doublestar.Match(r.glob, path)
		return ok
	}
	return r.re.MatchString(path)
}

// RoleMapper classifies structural paths into roles. Rules are evaluated in
// order and the first full match wins.
type RoleMapper struct {
	rules []compiledRule
	roles mapset.Set[string]
}

// NewRoleMapper compiles the rules once
func NewRoleMapper(rules []RoleRule) (*RoleMapper, error) {
	m := &RoleMapper{
		rules: make([]compiledRule, 0, len(rules)),
		roles: mapset.NewThreadUnsafeSet[string](),
	}

	for _, rule := range rules {
		if rule.Role == "" {
			return nil, fmt.Errorf("role mapping %q: empty role", rule.Pattern)
		}

		if glob, ok := strings.CutPrefix(rule.Pattern, globPrefix); ok {
			if !doublestar.ValidatePattern(glob) {
				return nil, fmt.Errorf("role mapping %q: invalid glob", rule.Pattern)
			}
			m.rules = append(m.rules, compiledRule{role: rule.Role, glob: glob, isGlob: true})
		} else {
			re, err := regexp.Compile(`^(?:` + rule.Pattern + `)$`)
			if err != nil {
				return nil, fmt.Errorf("role mapping %q: %w", rule.Pattern, err)
			}
			m.rules = append(m.rules, compiledRule{role: rule.Role, re: re})
		}
		m.roles.Add(rule.Role)
	}

	return m, nil
}

// MustRoleMapper is NewRoleMapper for static rule sets
func MustRoleMapper(rules []RoleRule) *RoleMapper {
	m, err := NewRoleMapper(rules)
	if err != nil {
		panic(err)
	}
	return m
}

// Match returns the role of the first matching rule, or "" if none matches
func (m *RoleMapper) Match(path string) string {
	for i := range m.rules {
		if m.rules[i].match(path) {
			return m.rules[i].role
		}
	}
	return ""
}

// Roles returns the distinct configured roles, sorted
func (m *RoleMapper) Roles() []string {
	roles := m.roles.ToSlice()
	slices.Sort(roles)
	return roles
}

// HasRole reports whether any rule assigns role
func (m *RoleMapper) HasRole(role string) bool {
	return m.roles.Contains(role)
}
