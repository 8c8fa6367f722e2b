package pipeline

import "sync"

// keyLock serializes work per message key. Two events for the same
// (account, folder, uid) may be in flight after a reconnect replay; holding
// the key while a message moves through the stages keeps their writes from
// interleaving.
type keyLock struct {
	mu   sync.Mutex
	cond *sync.Cond
	held map[string]struct{}
}

func newKeyLock() *keyLock {
	kl := &keyLock{held: make(map[string]struct{})}
	kl.cond = sync.NewCond(&kl.mu)
	return kl
}

func (kl *keyLock) lock(key string) {
	kl.mu.Lock()
	for {
		if _, ok := kl.held[key]; !ok {
			kl.held[key] = struct{}{}
			kl.mu.Unlock()
			return
		}
		kl.cond.Wait()
	}
}

func (kl *keyLock) unlock(key string) {
	kl.mu.Lock()
	delete(kl.held, key)
	kl.mu.Unlock()
	kl.cond.Broadcast()
}
