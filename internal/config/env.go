package config

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "LUADEBUG_"

// EnvMapping returns the short environment variable names and the setting
// paths they set.
func EnvMapping() map[string]string {
	return map[string]string{
		"LUADEBUG_USER":              "debugger.user",
		"LUADEBUG_POLL_INTERVAL":     "debugger.poll_interval",
		"LUADEBUG_STOP_ON_ENTRY":     "debugger.stop_on_entry",
		"LUADEBUG_STEP_OVER":         "debugger.step_over",
		"LUADEBUG_EXECUTION_TIMEOUT": "lua.execution_timeout",
		"LUADEBUG_STATEMENT_LIMIT":   "lua.statement_limit",
	}
}

// EnvLoader reads settings from environment variables.
type EnvLoader struct {
	prefix  string
	mapping map[string]string
	environ func() []string
}

// NewEnvLoader creates a loader for variables starting with prefix. The
// prefix should include the trailing underscore.
func NewEnvLoader(prefix string) *EnvLoader {
	return &EnvLoader{
		prefix:  prefix,
		mapping: EnvMapping(),
		environ: os.Environ,
	}
}

// Load returns the settings found in the environment as a YAML mapping node.
// Values are plain scalars so they resolve to the type of the field they
// are decoded into.
func (l *EnvLoader) Load() *yaml.Node {
	root := &yaml.Node{Kind: yaml.MappingNode}

	vars := l.environ()
	sort.Strings(vars)
	for _, kv := range vars {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, l.prefix) {
			continue
		}
		path, ok := l.mapping[name]
		if !ok {
			path = l.envToPath(name)
		}
		if path == "" {
			continue
		}
		setByPath(root, path, value)
	}
	return root
}

// Apply layers the environment over cfg.
func (l *EnvLoader) Apply(cfg *Config) error {
	root := l.Load()
	if len(root.Content) == 0 {
		return nil
	}
	if err := root.Decode(cfg); err != nil {
		return &ParseError{Err: err}
	}
	return nil
}

// envToPath converts LUADEBUG_LUA_CALL_STACK_SIZE to lua.call_stack_size.
func (l *EnvLoader) envToPath(env string) string {
	name := strings.ToLower(strings.TrimPrefix(env, l.prefix))
	section, key, ok := strings.Cut(name, "_")
	if !ok || section == "" || key == "" {
		return ""
	}
	return section + "." + key
}

// setByPath sets a scalar in a tree of mapping nodes using a dot-separated
// path, creating intermediate mappings.
func setByPath(root *yaml.Node, path, value string) {
	parts := strings.Split(path, ".")
	current := root
	for i, part := range parts {
		child := lookupKey(current, part)
		if i == len(parts)-1 {
			if child == nil {
				child = &yaml.Node{}
				current.Content = append(current.Content, scalar(part), child)
			}
			*child = *scalar(value)
			return
		}
		if child == nil || child.Kind != yaml.MappingNode {
			next := &yaml.Node{Kind: yaml.MappingNode}
			if child == nil {
				current.Content = append(current.Content, scalar(part), next)
			} else {
				*child = *next
				next = child
			}
			child = next
		}
		current = child
	}
}

func lookupKey(m *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func scalar(value string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}
