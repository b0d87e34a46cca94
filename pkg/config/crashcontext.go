package config

import (
	"regexp"
	"strconv"
	"strings"
)

// placeholder is the token spec.md §6 documents for a crashcontext
// DataPath: interpolated to the crashing process's pid.
const placeholder = "$"

// Matches reports whether procName matches this entry's ProcName regular
// expression.
func (c CrashContext) Matches(procName string) (bool, error) {
	re, err := regexp.Compile(c.ProcName)
	if err != nil {
		return false, err
	}
	return re.MatchString(procName), nil
}

// ExpandDataPath substitutes the crashing process's pid for every "$" in
// DataPath.
func (c CrashContext) ExpandDataPath(pid int64) string {
	return strings.ReplaceAll(c.DataPath, placeholder, strconv.FormatInt(pid, 10))
}
