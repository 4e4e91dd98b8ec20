package service

import "sync"

// listeners 变更监听器列表
type listeners struct {
	mu  sync.RWMutex
	fns []ChangeListener
}

func (l *listeners) add(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
}

func (l *listeners) emit(c Change) {
	l.mu.RLock()
	fns := append([]ChangeListener(nil), l.fns...)
	l.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
}
