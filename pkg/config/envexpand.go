package config

import (
	"bytes"
	"os"
	"strings"
	"text/template"
)

// ExpandEnv expands environment variables inside the raw bytes of the
// detector config file (§6's off-theme activity list and per-detector
// thresholds, read by LoadDetectorFileConfig) before it's unmarshaled
// as YAML. Variables use Go template syntax, {{.VAR}}; shell-style
// ${VAR} and $VAR are left as literal text, so regexes and passwords
// containing '$' pass through untouched.
//
// Examples, inside DETECTOR_CONFIG_FILE's content:
//   - `min_confidence: {{.ANIMATION_MIN_CONFIDENCE}}` → a per-environment
//     threshold override baked in before parsing
//   - `off_theme_activities: [{{.EXTRA_OFF_THEME_ACTIVITY}}]` → an
//     operator-supplied activity label appended without editing the file
//
// Missing variables expand to the empty string. If the content fails to
// parse or execute as a template, the original data slice is returned
// unchanged and left for the YAML parser to judge.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("config").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		return data
	}
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, env); err != nil {
		return data
	}
	return buf.Bytes()
}
