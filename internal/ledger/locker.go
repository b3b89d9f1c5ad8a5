package ledger

import (
	"sort"
	"sync"
)

// KeyedLocker serializes writers per aggregate key (a client, a county pool,
// an idempotency key). Unrelated keys never block each other.
type KeyedLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{locks: make(map[string]*keyLock)}
}

// Lock acquires every key in a stable order and returns the release func.
// Duplicate and empty keys are ignored.
func (l *KeyedLocker) Lock(keys ...string) (unlock func()) {
	ordered := normalizeKeys(keys)
	held := make([]*keyLock, 0, len(ordered))
	for _, k := range ordered {
		kl := l.acquire(k)
		kl.mu.Lock()
		held = append(held, kl)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			l.release(ordered[i])
		}
	}
}

func (l *KeyedLocker) acquire(key string) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyedLocker) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl := l.locks[key]
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Size reports how many keys are currently held or awaited.
func (l *KeyedLocker) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func normalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ClientKey, CountyKey and IdempotencyKey name the lockable aggregates.
func ClientKey(id string) string {
	if id == "" {
		return ""
	}
	return "client:" + id
}

func CountyKey(county string) string {
	if county == "" {
		return ""
	}
	return "county:" + county
}

func IdempotencyKey(key string) string {
	if key == "" {
		return ""
	}
	return "idem:" + key
}
