// Package rules loads the declarative rule set driving both mangling passes.
// The rule document is YAML with one section per dataset:
//
//	entities:
//	  keep_project_users: true
//	  keep_users: [alice]
//	  rewrite_users: {"bob@old.net": "bob@new.net"}
//	  drop_osproperty: ["jira.plugin.*"]
//	activeobjects:
//	  clear_tables: ["AO_*_AUDIT*"]
//
// Globs follow fnmatch semantics: "*" matches any run of characters,
// including "/". Patterns are compiled at load time so that a malformed rule
// set fails before any input is touched.
package rules

import (
	"fmt"
	"os"

	"github.com/gobwas/glob"
	"gopkg.in/yaml.v3"
)

// Rules is the full rule document.
type Rules struct {
	Entities      EntityRules       `yaml:"entities"`
	ActiveObjects ActiveObjectRules `yaml:"activeobjects"`
}

// EntityRules configures the entities pass.
type EntityRules struct {
	// KeepProjectUsers retains every user referenced by a user-type
	// ProjectRoleActor in addition to the explicit keep list.
	KeepProjectUsers bool `yaml:"keep_project_users"`

	// KeepUsers lists usernames retained unconditionally. An empty list with
	// KeepProjectUsers false means no user constraint at all.
	KeepUsers []string `yaml:"keep_users"`

	// DropUsers is subtracted from the retained set after project users are
	// merged in.
	DropUsers []string `yaml:"drop_users"`

	// RewriteUsers renames user keys (old → new) everywhere they appear.
	// Keys of this map are implicitly retained.
	RewriteUsers map[string]string `yaml:"rewrite_users"`

	// ModifyUsers overrides attributes on a user's record, keyed by the
	// username as it appears after any rewrite.
	ModifyUsers map[string]map[string]string `yaml:"modify_users"`

	// KeepGroups is the group allowlist. Empty means no group constraint.
	KeepGroups []string `yaml:"keep_groups"`

	// RewriteDirectories remaps directory ids (old → new). Directories not
	// appearing as a mapped target are dropped, as are records bound to an
	// unmapped directory.
	RewriteDirectories map[string]string `yaml:"rewrite_directories"`

	// DropOSProperty drops properties whose "entityName/propertyKey"
	// composite matches any glob.
	DropOSProperty []string `yaml:"drop_osproperty"`

	// RewriteOSProperty replaces the value of properties whose composite key
	// matches exactly.
	RewriteOSProperty map[string]string `yaml:"rewrite_osproperty"`
}

// ActiveObjectRules configures the secondary-dataset pass.
type ActiveObjectRules struct {
	// ClearTables drops every table whose name matches a glob.
	ClearTables []string `yaml:"clear_tables"`
}

// Load reads and parses a rule document from path.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %q: %w", path, err)
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}

	return r, nil
}

// Parse parses a rule document from raw YAML bytes and validates every glob
// pattern it contains.
func Parse(data []byte) (*Rules, error) {
	var r Rules

	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	if err := r.Validate(); err != nil {
		return nil, err
	}

	return &r, nil
}

// Validate compiles every glob in the rule set, returning the first error.
func (r *Rules) Validate() error {
	if _, err := CompilePatterns(r.Entities.DropOSProperty); err != nil {
		return fmt.Errorf("entities.drop_osproperty: %w", err)
	}

	if _, err := CompilePatterns(r.ActiveObjects.ClearTables); err != nil {
		return fmt.Errorf("activeobjects.clear_tables: %w", err)
	}

	return nil
}

// PatternList is a compiled set of fnmatch-style globs.
type PatternList struct {
	sources []string
	globs   []glob.Glob
}

// CompilePatterns compiles the given globs. A nil or empty input yields a
// list that matches nothing.
func CompilePatterns(patterns []string) (*PatternList, error) {
	pl := &PatternList{}

	for _, p := range patterns {
		// No separator characters: "*" crosses "/" like fnmatch does.
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", p, err)
		}

		pl.sources = append(pl.sources, p)
		pl.globs = append(pl.globs, g)
	}

	return pl, nil
}

// Match reports whether s matches any pattern in the list.
func (pl *PatternList) Match(s string) bool {
	if pl == nil {
		return false
	}

	for _, g := range pl.globs {
		if g.Match(s) {
			return true
		}
	}

	return false
}

// Empty reports whether the list has no patterns.
func (pl *PatternList) Empty() bool {
	return pl == nil || len(pl.globs) == 0
}

// Sources returns the original pattern strings.
func (pl *PatternList) Sources() []string {
	return pl.sources
}
