package crews

import "regexp"

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_.-]*)\}`)

// Bind 将 template 中的 {name} 占位符替换为 vars 中的值。
// 没有对应键的占位符保持原样；替换值按原文插入，不会被再次扫描。
// 因此只有当替换值本身不含可被 vars 覆盖的占位符时，Bind 才是幂等的：
// Bind("{a}", {a: "{b}", b: "x"}) 得到 "{b}"，再次绑定才会得到 "x"。
// 上游任务输出可能包含花括号文本，单次替换保证它们不会被当作模板展开。
func Bind(template string, vars map[string]string) string {
	if len(vars) == 0 {
		return template
	}
	return placeholderPattern.ReplaceAllStringFunc(template, func(tok string) string {
		if v, ok := vars[tok[1:len(tok)-1]]; ok {
			return v
		}
		return tok
	})
}

// Placeholders 按首次出现顺序返回 template 中不重复的占位符名称。
func Placeholders(template string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(template, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			out = append(out, m[1])
		}
	}
	return out
}
