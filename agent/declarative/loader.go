package declarative

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Source is one definition document together with the name it was read from.
// Format is "yaml" or "json"; JSON documents are parsed by the YAML decoder.
type Source struct {
	Name   string
	Data   []byte
	Format string
}

// NewSource builds a Source and detects its format from name.
func NewSource(name string, data []byte) Source {
	return Source{Name: name, Data: data, Format: detectFormat(name)}
}

// LoadFile reads a definition file. Format is auto-detected from the file
// extension (.yaml, .yml, .json).
func LoadFile(path string) (Source, error) {
	format := detectFormat(path)
	if format == "" {
		return Source{}, fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read definition file: %w", err)
	}
	return Source{Name: path, Data: data, Format: format}, nil
}

// LoadDir reads every definition file directly under dir, sorted by name.
// Files with other extensions are ignored.
func LoadDir(dir string) ([]Source, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read definitions dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || detectFormat(e.Name()) == "" {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	sources := make([]Source, 0, len(names))
	for _, name := range names {
		src, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}

// parseSource decodes one document. A document either carries top-level
// agents/tasks/crews keys, or its file stem names the kind and the whole
// document is that map (agents.yml, tasks.yml, crew.yml). Documents matching
// neither, such as an api.yml next to the definitions, yield nothing.
func parseSource(src Source) (*Document, error) {
	switch strings.ToLower(src.Format) {
	case "yaml", "yml", "json":
	default:
		return nil, fmt.Errorf("%s: unsupported format %q, use \"yaml\" or \"json\"", src.Name, src.Format)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(src.Data, &root); err != nil {
		return nil, fmt.Errorf("%s: parse %s: %w", src.Name, strings.ToUpper(src.Format), err)
	}
	doc := &Document{}
	if len(root.Content) == 0 {
		return doc, nil
	}
	expandEnv(&root)

	body := root.Content[0]
	if body.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: document root must be a mapping", src.Name)
	}

	var err error
	if hasKindKey(body) {
		err = body.Decode(doc)
	} else {
		switch stem(src.Name) {
		case "agents":
			err = body.Decode(&doc.Agents)
		case "tasks":
			err = body.Decode(&doc.Tasks)
		case "crews", "crew":
			err = body.Decode(&doc.Crews)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", src.Name, err)
	}

	for id, c := range doc.Crew {
		if _, dup := doc.Crews[id]; dup {
			return nil, fmt.Errorf("%s: crew %q defined under both crew and crews", src.Name, id)
		}
		if doc.Crews == nil {
			doc.Crews = make(map[string]CrewSpec, len(doc.Crew))
		}
		doc.Crews[id] = c
	}
	doc.Crew = nil
	return doc, nil
}

func hasKindKey(mapping *yaml.Node) bool {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		switch mapping.Content[i].Value {
		case "agents", "tasks", "crews", "crew":
			return true
		}
	}
	return false
}

var envPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnv replaces ${VAR} in every string scalar. Unset variables are
// kept literally.
func expandEnv(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode && n.ShortTag() == "!!str" {
		n.Value = envPattern.ReplaceAllStringFunc(n.Value, func(m string) string {
			if v, ok := os.LookupEnv(m[2 : len(m)-1]); ok {
				return v
			}
			return m
		})
		return
	}
	for _, c := range n.Content {
		expandEnv(c)
	}
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.ToLower(strings.TrimSuffix(base, filepath.Ext(base)))
}

// detectFormat returns "yaml" or "json" based on file extension, or "" if unknown.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
