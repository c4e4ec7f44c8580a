// Package entity implements the entity registry (C7): it scans a project
// tree to enumerate "entities" (specs, source trees, research topics,
// knowledge bases, tools) and derives the per-entity match signatures the
// classifier (package classify) scores sessions against.
//
// Grounded in
// original_source/src/session_history/config/entity_registry.py, with its
// hardcoded Chinese directory names and machine-specific legacy aliases
// generalised into config.RegistryConfig per SPEC_FULL.md §4.5.
package entity

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// Type enumerates the five recognised entity kinds (spec §3).
type Type string

const (
	TypeSpec      Type = "spec"
	TypeSource    Type = "source"
	TypeResearch  Type = "research"
	TypeKnowledge Type = "knowledge"
	TypeTool      Type = "tool"
)

// Entity is a project concept with a signature used by the classifier
// (spec §3).
type Entity struct {
	Type         Type
	Name         string
	DisplayName  string
	Directory    string
	Keywords     map[string]bool
	PathPatterns []string
	TextPatterns []string
}

// ID returns the entity's stable identifier "<type>:<name>".
func (e Entity) ID() string { return string(e.Type) + ":" + e.Name }

// LegacyAlias maps a historical directory/name to the current entity it now
// refers to, contributing extra keyword/path/text pattern variants so older
// transcripts still classify correctly.
type LegacyAlias struct {
	OldName       string
	CurrentName   string
	ExtraKeywords []string
	ExtraPaths    []string
	ExtraText     []string
}

// Registry holds the discovered entities plus any legacy aliases to apply.
type Registry struct {
	ProjectRoot string
	SpecDirs    []string
	SourceDir   string
	ResearchDir string
	KnowledgeDir string
	ToolDir     string
	LegacyAliases []LegacyAlias

	entities map[string]*Entity
}

var specDirNameRE = regexp.MustCompile(`^[A-Z]?\d+_.*$`)

// DiscoverAll walks every configured directory group and returns the full
// entity list, sorted by type name and then by entity name.
func (r *Registry) DiscoverAll() ([]Entity, error) {
	r.entities = map[string]*Entity{}

	for _, specDir := range r.SpecDirs {
		if err := r.discoverSpecs(specDir); err != nil {
			return nil, err
		}
	}
	if r.SourceDir != "" {
		if err := r.discoverSubdirs(TypeSource, r.SourceDir); err != nil {
			return nil, err
		}
	}
	if r.ResearchDir != "" {
		if err := r.discoverSubdirs(TypeResearch, r.ResearchDir); err != nil {
			return nil, err
		}
	}
	if r.KnowledgeDir != "" {
		if err := r.discoverSubdirs(TypeKnowledge, r.KnowledgeDir); err != nil {
			return nil, err
		}
	}
	if r.ToolDir != "" {
		if info, err := os.Stat(filepath.Join(r.ProjectRoot, r.ToolDir)); err == nil && info.IsDir() {
			r.addEntity(&Entity{
				Type:        TypeTool,
				Name:        filepath.Base(r.ToolDir),
				DisplayName: filepath.Base(r.ToolDir),
				Directory:   r.ToolDir,
				Keywords:    map[string]bool{strings.ToLower(filepath.Base(r.ToolDir)): true},
				PathPatterns: []string{r.ToolDir + "/"},
			})
		}
	}

	r.applyLegacyAliases()
	r.crossLink()

	return r.sorted(), nil
}

func (r *Registry) discoverSpecs(specRoot string) error {
	entries, err := os.ReadDir(filepath.Join(r.ProjectRoot, specRoot))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() || !specDirNameRE.MatchString(e.Name()) {
			continue
		}
		name := e.Name()
		dir := filepath.Join(specRoot, name)
		display := strings.TrimSuffix(stripSpecNumberPrefix(name), "_")
		kw := map[string]bool{strings.ToLower(display): true}
		for _, part := range strings.FieldsFunc(display, func(r rune) bool { return r == '_' || r == '-' }) {
			if len([]rune(part)) > 2 {
				kw[strings.ToLower(part)] = true
			}
		}
		r.addEntity(&Entity{
			Type:         TypeSpec,
			Name:         name,
			DisplayName:  display,
			Directory:    dir,
			Keywords:     kw,
			PathPatterns: []string{dir + "/"},
		})
	}
	return nil
}

var specNumberPrefixRE = regexp.MustCompile(`^[A-Z]?\d+_`)

func stripSpecNumberPrefix(name string) string {
	return specNumberPrefixRE.ReplaceAllString(name, "")
}

func (r *Registry) discoverSubdirs(t Type, root string) error {
	entries, err := os.ReadDir(filepath.Join(r.ProjectRoot, root))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		dir := filepath.Join(root, name)
		kw := map[string]bool{strings.ToLower(name): true}
		r.addEntity(&Entity{
			Type:         t,
			Name:         name,
			DisplayName:  name,
			Directory:    dir,
			Keywords:     kw,
			PathPatterns: []string{dir + "/"},
		})
	}
	return nil
}

func (r *Registry) addEntity(e *Entity) {
	r.entities[e.ID()] = e
}

// applyLegacyAliases merges each alias's extra keyword/path/text patterns
// into the current entity it points to, if that entity was discovered.
func (r *Registry) applyLegacyAliases() {
	for _, alias := range r.LegacyAliases {
		var target *Entity
		for _, e := range r.entities {
			if e.Name == alias.CurrentName {
				target = e
				break
			}
		}
		if target == nil {
			continue
		}
		for _, k := range alias.ExtraKeywords {
			target.Keywords[strings.ToLower(k)] = true
		}
		target.PathPatterns = appendUnique(target.PathPatterns, alias.ExtraPaths...)
		target.TextPatterns = appendUnique(target.TextPatterns, alias.ExtraText...)
		target.Keywords[strings.ToLower(alias.OldName)] = true
	}
}

// crossLink implements spec §4.5's cross-linking pass: when a spec's
// keyword set contains the lowercase name of a source entity, the source's
// path_patterns and text_patterns are merged into the spec so
// implementation code reads as evidence for the spec.
func (r *Registry) crossLink() {
	var sources []*Entity
	for _, e := range r.entities {
		if e.Type == TypeSource {
			sources = append(sources, e)
		}
	}
	for _, e := range r.entities {
		if e.Type != TypeSpec {
			continue
		}
		for _, src := range sources {
			if e.Keywords[strings.ToLower(src.Name)] {
				e.PathPatterns = appendUnique(e.PathPatterns, src.PathPatterns...)
				e.TextPatterns = appendUnique(e.TextPatterns, src.TextPatterns...)
			}
		}
	}
}

func appendUnique(base []string, add ...string) []string {
	seen := map[string]bool{}
	for _, b := range base {
		seen[b] = true
	}
	for _, a := range add {
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		base = append(base, a)
	}
	return base
}

func (r *Registry) sorted() []Entity {
	out := make([]Entity, 0, len(r.entities))
	for _, e := range r.entities {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Name < out[j].Name
	})
	return out
}
