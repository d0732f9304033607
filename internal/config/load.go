package config

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v2"
)

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// https://stackoverflow.com/a/35247204
func replaceAllGroupFunc(re *regexp.Regexp, str string, repl func([]string) string) string {
	result := ""
	lastIndex := 0

	for _, v := range re.FindAllStringSubmatchIndex(str, -1) {
		groups := []string{}
		for i := 0; i < len(v); i += 2 {
			groups = append(groups, str[v[i]:v[i+1]])
		}

		result += str[lastIndex:v[0]] + repl(groups)
		lastIndex = v[1]
	}

	return result + str[lastIndex:]
}

// ExpandEnv replaces every ${NAME} placeholder with the value returned by
// lookup. Unknown names expand to an empty string.
func ExpandEnv(raw string, lookup func(string) (string, bool)) string {
	return replaceAllGroupFunc(varPattern, raw, func(groups []string) string {
		if v, ok := lookup(groups[1]); ok {
			return v
		}
		return ""
	})
}

// Parse interpolates ${VAR} placeholders against the process environment and
// decodes the resulting document.
func Parse(data []byte) (cfg *Config, err error) {
	return parse(data, os.LookupEnv)
}

func parse(data []byte, lookup func(string) (string, bool)) (cfg *Config, err error) {
	expanded := ExpandEnv(string(data), lookup)

	var config Config
	if err = yaml.Unmarshal([]byte(expanded), &config); err != nil {
		err = fmt.Errorf("failed to parse config: %w", err)
		return
	}

	if err = config.Validate(); err != nil {
		return
	}

	cfg = &config
	return
}

// Load reads and parses the configuration document at path.
func Load(path string) (cfg *Config, err error) {
	var data []byte
	if data, err = os.ReadFile(path); err != nil {
		err = fmt.Errorf("failed to read config: %w", err)
		return
	}

	return Parse(data)
}

// Validate checks the structural requirements of every deployment.
func (c *Config) Validate() error {
	if len(c.Deployments) == 0 {
		return fmt.Errorf("no deployments configured")
	}

	for _, app := range c.AppNames() {
		d := c.Deployments[app]
		if app == "" {
			return fmt.Errorf("deployment with empty name")
		}
		if d.Path == "" {
			return fmt.Errorf("deployment %q: path is required", app)
		}
		if len(d.Steps) == 0 {
			return fmt.Errorf("deployment %q: at least one step is required", app)
		}
		if d.Timeout < 0 {
			return fmt.Errorf("deployment %q: timeout must not be negative", app)
		}
		for idx, step := range d.Steps {
			if step.Run == "" {
				return fmt.Errorf("deployment %q: step %d (%q) has empty run command", app, idx, step.Name)
			}
			if step.Timeout < 0 {
				return fmt.Errorf("deployment %q: step %d (%q) timeout must not be negative", app, idx, step.Name)
			}
		}
	}

	return nil
}

// AppNames returns the configured application names in sorted order.
func (c *Config) AppNames() (names []string) {
	names = make([]string, 0, len(c.Deployments))
	for name := range c.Deployments {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}
