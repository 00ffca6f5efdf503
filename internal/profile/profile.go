package profile

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/openmined/notesync/internal/sync"
	"gopkg.in/yaml.v3"
)

//go:embed profiles/*.yaml
var builtins embed.FS

const DefaultProfile = "university"

var ErrUnknownProfile = errors.New("unknown profile")

// Resource tells the remote side where entities of a role are created
type Resource struct {
	// Container is the title of the collection that holds new entities
	Container string `yaml:"container"`
	// Relation names the role of the parent an entity links to
	Relation string `yaml:"relation,omitempty"`
}

// Profile describes how a document layout maps onto both sides.
type Profile struct {
	Name          string              `yaml:"name"`
	Hierarchy     []string            `yaml:"hierarchy"`
	LocalMapping  []sync.RoleRule     `yaml:"local_mapping"`
	RemoteMapping []sync.RoleRule     `yaml:"remote_mapping"`
	Structure     map[string]string   `yaml:"structure"`
	Resources     map[string]Resource `yaml:"resources"`
}

// Builtin returns an embedded profile by name
func Builtin(name string) (*Profile, error) {
	raw, err := builtins.ReadFile(path.Join("profiles", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w %q", ErrUnknownProfile, name)
	}
	return Parse(raw)
}

// Builtins lists the embedded profile names
func Builtins() []string {
	entries, _ := builtins.ReadDir("profiles")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	slices.Sort(names)
	return names
}

// Load reads a profile from a YAML file
func Load(file string) (*Profile, error) {
	raw, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read profile: %w", err)
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", file, err)
	}
	return p, nil
}

// Resolve treats ref as a file when it looks like a path, otherwise as a builtin name
func Resolve(ref string) (*Profile, error) {
	if ref == "" {
		ref = DefaultProfile
	}
	if strings.ContainsAny(ref, `/\`) || strings.HasSuffix(ref, ".yaml") || strings.HasSuffix(ref, ".yml") {
		return Load(ref)
	}
	return Builtin(ref)
}

func Parse(raw []byte) (*Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every hierarchy role can be classified, typed and created
func (p *Profile) Validate() error {
	if len(p.Hierarchy) == 0 {
		return errors.New("hierarchy is empty")
	}

	local, err := sync.NewRoleMapper(p.LocalMapping)
	if err != nil {
		return fmt.Errorf("local_mapping: %w", err)
	}
	remote, err := sync.NewRoleMapper(p.RemoteMapping)
	if err != nil {
		return fmt.Errorf("remote_mapping: %w", err)
	}

	var errs []error
	for _, role := range p.Hierarchy {
		if !local.HasRole(role) {
			errs = append(errs, fmt.Errorf("role %q has no local mapping", role))
		}
		if !remote.HasRole(role) {
			errs = append(errs, fmt.Errorf("role %q has no remote mapping", role))
		}
		if _, err := p.NodeType(role); err != nil {
			errs = append(errs, err)
		}
		res, ok := p.Resources[role]
		if !ok || res.Container == "" {
			errs = append(errs, fmt.Errorf("role %q has no resource container", role))
		} else if res.Relation != "" && !slices.Contains(p.Hierarchy, res.Relation) {
			errs = append(errs, fmt.Errorf("role %q relates to unknown role %q", role, res.Relation))
		}
	}
	return errors.Join(errs...)
}

// NodeType returns the structural type configured for role
func (p *Profile) NodeType(role string) (sync.NodeType, error) {
	s, ok := p.Structure[role]
	if !ok {
		return sync.NodeTypeUnknown, fmt.Errorf("role %q has no structure type", role)
	}
	t, err := sync.ParseNodeType(s)
	if err != nil {
		return sync.NodeTypeUnknown, fmt.Errorf("role %q: %w", role, err)
	}
	return t, nil
}

func (p *Profile) LocalMapper() (*sync.RoleMapper, error) {
	return sync.NewRoleMapper(p.LocalMapping)
}

func (p *Profile) RemoteMapper() (*sync.RoleMapper, error) {
	return sync.NewRoleMapper(p.RemoteMapping)
}

// Types returns the structure map with parsed node types
func (p *Profile) Types() map[string]sync.NodeType {
	types := make(map[string]sync.NodeType, len(p.Structure))
	for role := range p.Structure {
		if t, err := p.NodeType(role); err == nil {
			types[role] = t
		}
	}
	return types
}
