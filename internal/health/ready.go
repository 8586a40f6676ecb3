package health

import "sync"

// Readiness 就绪条件集合，全部满足才就绪（/readyz）
type Readiness struct {
	mu    sync.RWMutex
	names []string
	conds map[string]func() bool
}

func NewReadiness() *Readiness {
	return &Readiness{conds: make(map[string]func() bool)}
}

// Add 注册一个就绪条件，同名覆盖
func (r *Readiness) Add(name string, cond func() bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conds[name]; !ok {
		r.names = append(r.names, name)
	}
	r.conds[name] = cond
}

// Ready 返回是否就绪以及未满足的条件名（按注册顺序）
func (r *Readiness) Ready() (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var pending []string
	for _, n := range r.names {
		if !r.conds[n]() {
			pending = append(pending, n)
		}
	}
	return len(pending) == 0, pending
}
