package feature

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rushteam/rescore/core"
)

var macroPattern = regexp.MustCompile(`\$\{([^}]*)\}`)

// ExpandMacros 用 params 替换 s 中的 ${name} 和 ${name:-default}。
// name 可以带 efi. 前缀；参数缺失且没有默认值时返回 CONFIGURATION 错误。
func ExpandMacros(s string, params map[string]string) (string, error) {
	if !strings.Contains(s, "${") {
		return s, nil
	}
	var missing []string
	out := macroPattern.ReplaceAllStringFunc(s, func(m string) string {
		body := m[2 : len(m)-1]
		name, def, hasDefault := strings.Cut(body, ":-")
		name = strings.TrimPrefix(strings.TrimSpace(name), "efi.")
		if v, ok := params[name]; ok {
			return v
		}
		if hasDefault {
			return def
		}
		missing = append(missing, name)
		return m
	})
	if len(missing) > 0 {
		return "", core.ConfigurationError(core.ModuleFeature,
			fmt.Sprintf("missing external parameter(s): %s", strings.Join(missing, ",")))
	}
	return out, nil
}
