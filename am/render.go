package am

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/teranos/quotesearch/errors"
)

// Output formats accepted by Render
const (
	FormatTOML = "toml"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

const redacted = "********"

// EffectiveSettings returns the merged settings with secrets redacted
func EffectiveSettings() map[string]interface{} {
	return RedactSecrets(GetViper().AllSettings())
}

// RedactSecrets replaces non-empty values of keys ending in api_key
func RedactSecrets(settings map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = RedactSecrets(val)
		default:
			if strings.HasSuffix(k, "api_key") {
				if s, ok := v.(string); ok && s != "" {
					out[k] = redacted
					continue
				}
			}
			out[k] = v
		}
	}
	return out
}

// Render serializes settings in the requested format
func Render(settings map[string]interface{}, format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case FormatTOML, "":
		return toml.Marshal(settings)
	case FormatYAML, "yml":
		return yaml.Marshal(settings)
	case FormatJSON:
		return json.MarshalIndent(settings, "", "  ")
	default:
		return nil, errors.Newf("unknown format %q (want toml, yaml or json)", format)
	}
}

// SortedKeys flattens settings into sorted dotted keys, for table output
func SortedKeys(settings map[string]interface{}) []string {
	var keys []string
	var walk func(prefix string, m map[string]interface{})
	walk = func(prefix string, m map[string]interface{}) {
		for k, v := range m {
			full := k
			if prefix != "" {
				full = prefix + "." + k
			}
			if sub, ok := v.(map[string]interface{}); ok {
				walk(full, sub)
				continue
			}
			keys = append(keys, full)
		}
	}
	walk("", settings)
	sort.Strings(keys)
	return keys
}
