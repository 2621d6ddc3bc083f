package feature

import "time"

// Debug 记录单个特征在一次请求内的耗时与调用次数。
type Debug struct {
	Name     string
	Time     time.Duration
	Total    int64
	Cost     int64
	Children []*Debug
}

func NewDebug(name string) *Debug { return &Debug{Name: name} }

// Inc 累加耗时与求值次数。
func (d *Debug) Inc(elapsed time.Duration, n int64) {
	d.Time += elapsed
	d.Total += n
}

// IncTime 只累加耗时。
func (d *Debug) IncTime(elapsed time.Duration) { d.Time += elapsed }

// IncCost 累加迭代器 cost。
func (d *Debug) IncCost(cost int64) { d.Cost += cost }

// AsMap 输出 {time(ms), total, cost, children}。
func (d *Debug) AsMap() map[string]any {
	m := map[string]any{
		"time":  d.Time.Milliseconds(),
		"total": d.Total,
		"cost":  d.Cost,
	}
	if len(d.Children) > 0 {
		children := make(map[string]any, len(d.Children))
		for _, c := range d.Children {
			children[c.Name] = c.AsMap()
		}
		m["children"] = children
	}
	return m
}
