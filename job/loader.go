package job

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// TestEnv selects the dedicated test configuration file in LoadDir.
const TestEnv = "test"

const testConfigFile = "test.yaml"

// Source is one configuration document.
type Source struct {
	// Name identifies the source in errors, usually a file path.
	Name string
	Data []byte
}

// Load parses sources in order and builds a Registry.
// Jobs from later sources replace jobs of the same name from earlier ones.
func Load(sources ...Source) (*Registry, error) {
	defs := make([]Definition, 0)
	for _, src := range sources {
		parsed, err := parseSource(src)
		if err != nil {
			return nil, err
		}
		defs = append(defs, parsed...)
	}

	return NewRegistry(defs...), nil
}

// LoadFiles reads and loads the given files in order.
func LoadFiles(paths ...string) (*Registry, error) {
	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("job: read config %s: %w", path, err)
		}
		sources = append(sources, Source{Name: path, Data: data})
	}

	return Load(sources...)
}

// LoadDir loads the YAML files of dir.
// With env TestEnv only test.yaml is read; otherwise every *.yaml and *.yml file
// except test.yaml is read in lexical order.
func LoadDir(dir, env string) (*Registry, error) {
	files, err := ConfigFiles(dir, env)
	if err != nil {
		return nil, err
	}

	return LoadFiles(files...)
}

// ConfigFiles lists the files LoadDir would read.
func ConfigFiles(dir, env string) ([]string, error) {
	if env == TestEnv {
		return []string{filepath.Join(dir, testConfigFile)}, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("job: read config dir %s: %w", dir, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if name == testConfigFile {
			continue
		}
		files = append(files, filepath.Join(dir, name))
	}
	sort.Strings(files)

	return files, nil
}

func parseSource(src Source) ([]Definition, error) {
	var doc any
	if err := yaml.Unmarshal(src.Data, &doc); err != nil {
		return nil, invalidConfig(src.Name, "parse yaml: %v", err)
	}

	root, ok := asMap(doc)
	if !ok {
		return nil, invalidConfig(src.Name, "not a map")
	}
	jobs, ok := asMap(root["jobs"])
	if !ok {
		return nil, invalidConfig(src.Name, "missing jobs map")
	}

	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	defs := make([]Definition, 0, len(jobs))
	for _, name := range names {
		def, err := parseJob(src.Name, name, jobs[name])
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	return defs, nil
}

func parseJob(source, name string, raw any) (Definition, error) {
	cfg, ok := asMap(raw)
	if !ok {
		return Definition{}, invalidConfig(source, "job %q is not a map", name)
	}
	request, ok := asMap(cfg["request"])
	if !ok {
		return Definition{}, invalidConfig(source, "job %q has no request map", name)
	}

	method, okMethod := request["method"].(string)
	url, okURL := request["url"].(string)
	if !okMethod || !okURL {
		return Definition{}, invalidConfig(source, "job %q: request method and url must be strings", name)
	}

	def := Definition{Name: name, Method: method, URL: url}

	var err error
	if def.QueryKeys, err = keyList(source, name, request, "query_url_from"); err != nil {
		return Definition{}, err
	}
	if def.BodyKeys, err = keyList(source, name, request, "json_body_from"); err != nil {
		return Definition{}, err
	}
	if def.RequiredKeys, err = keyList(source, name, request, "required"); err != nil {
		return Definition{}, err
	}

	if def.LogSuffix, err = optionalString(source, name, cfg, "log_suffix"); err != nil {
		return Definition{}, err
	}
	if def.OnStart, err = optionalString(source, name, cfg, "on_start"); err != nil {
		return Definition{}, err
	}
	if def.OnSuccess, err = optionalString(source, name, cfg, "on_success"); err != nil {
		return Definition{}, err
	}
	if def.OnFail, err = optionalString(source, name, cfg, "on_fail"); err != nil {
		return Definition{}, err
	}

	if raw, ok := cfg["success"]; ok && raw != nil {
		success, ok := asMap(raw)
		if !ok {
			return Definition{}, invalidConfig(source, "job %q: success must be a map", name)
		}
		if code, ok := success["status_code"]; ok && code != nil {
			status, ok := code.(int)
			if !ok {
				return Definition{}, invalidConfig(source, "job %q: success.status_code must be an integer", name)
			}
			def.SuccessStatus = status
		}
	}

	return def, nil
}

func keyList(source, name string, request map[string]any, field string) ([]string, error) {
	raw, ok := request[field]
	if !ok || raw == nil {
		return nil, nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil, invalidConfig(source, "job %q: request.%s must be a list", name, field)
	}

	keys := make([]string, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case string:
			keys = append(keys, v)
		case nil, map[string]any, []any:
			return nil, invalidConfig(source, "job %q: request.%s entries must be scalars", name, field)
		default:
			keys = append(keys, fmt.Sprint(v))
		}
	}

	return keys, nil
}

func optionalString(source, name string, cfg map[string]any, field string) (string, error) {
	raw, ok := cfg[field]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", invalidConfig(source, "job %q: %s must be a string", name, field)
	}

	return s, nil
}

// asMap normalizes YAML mappings; keys that are not strings are formatted.
func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}

		return out, true
	default:
		return nil, false
	}
}
