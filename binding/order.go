package binding

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ByLCY/formstamp/template"
)

// ErrCycle 表示 autoFill 依赖存在环或自引用，本次解析无法确定顺序。
var ErrCycle = errors.New("autoFill 存在循环依赖")

// order 按 autoFill 依赖拓扑排序字段 id；同一层级内保持文档顺序（Kahn 算法，按文档顺序出队）。
func order(tpl *template.Template) ([]string, error) {
	ids := tpl.Fields.IDs()
	indeg := make(map[string]int, len(ids))
	dependents := make(map[string][]string, len(ids))
	for _, id := range ids {
		indeg[id] += 0
		for _, dep := range tpl.AutoFillDeps(id) {
			indeg[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	out := make([]string, 0, len(ids))
	done := make(map[string]bool, len(ids))
	for len(out) < len(ids) {
		progressed := false
		for _, id := range ids {
			if done[id] || indeg[id] > 0 {
				continue
			}
			done[id] = true
			out = append(out, id)
			for _, next := range dependents[id] {
				indeg[next]--
			}
			progressed = true
		}
		if !progressed {
			var stuck []string
			for _, id := range ids {
				if !done[id] {
					stuck = append(stuck, id)
				}
			}
			return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(stuck, ", "))
		}
	}
	return out, nil
}
