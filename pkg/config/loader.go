package config

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/gluejdbc/pkg/jdbcerrors"
)

// Load loads a configuration from a YAML file into target
func Load(filePath string, target interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: path comes from the operator
	if err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to read config file").
			WithDetail("path", filePath)
	}

	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), target); err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to parse YAML").
			WithDetail("path", filePath)
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, source interface{}) error {
	data, err := yaml.Marshal(source)
	if err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0600); err != nil {
		return jdbcerrors.Wrap(err, jdbcerrors.KindConfig, "failed to write config file").
			WithDetail("path", filePath)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	var out strings.Builder
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		out.WriteString(content[:start])
		out.WriteString(os.Getenv(content[start+2 : end]))
		content = content[end+1:]
	}
	out.WriteString(content)
	return out.String()
}
