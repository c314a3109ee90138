package config

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MartVarKeys are the optional mart-layer parameters, in injection order.
var MartVarKeys = []string{"DBT_VAR_YEAR", "DBT_VAR_MONTH", "DBT_VAR_QUARTER", "DBT_VAR_DATE"}

const martVarPrefix = "DBT_VAR_"

// ParseOptionalInt parses an optional integer setting. Blank and "null" are
// absent without a diagnostic; anything else that is not an integer is absent
// with a diagnostic describing why.
func ParseOptionalInt(name, raw string) (int, bool, string) {
	value := strings.TrimSpace(raw)
	if value == "" || strings.EqualFold(value, "null") || strings.EqualFold(value, "none") {
		return 0, false, ""
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Sprintf("Could not convert %s='%s' to int; ignoring it", name, raw)
	}
	return n, true, ""
}

// MartVars collects the mart parameters present in env, keyed by their
// lower-cased name without the DBT_VAR_ prefix.
func MartVars(env Environment) (map[string]int, []string) {
	vars := make(map[string]int)
	var warnings []string

	for _, key := range MartVarKeys {
		raw, _ := env.Lookup(key)
		n, ok, diag := ParseOptionalInt(key, raw)
		if diag != "" {
			warnings = append(warnings, diag)
		}
		if ok {
			vars[strings.ToLower(strings.TrimPrefix(key, martVarPrefix))] = n
		}
	}
	return vars, warnings
}

// VarsJSON renders vars as the JSON object passed to dbt --vars
func VarsJSON(vars map[string]int) string {
	if len(vars) == 0 {
		return "{}"
	}
	// map keys are emitted sorted
	data, _ := json.Marshal(vars)
	return string(data)
}
