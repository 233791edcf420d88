package cedar

import "time"

// --------------------------------------------------------------------------
// TTL Collector
// --------------------------------------------------------------------------

// garbageCollector deletes expired keys every gcInterval until gcStop is closed.
// Lazy expiry in Get and Exists covers the time between two runs.
func (c *cedarImpl) garbageCollector() {
	defer close(c.gcDone)

	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.gcStop:
			return
		case <-ticker.C:
			if n := c.collectExpired(); n > 0 {
				log.Debugf("ttl collector removed %d expired keys", n)
			}
		}
	}
}

// collectExpired removes every key whose deadline has passed and returns how many keys were removed.
//
// Every key has at most one deadline in the schedule, so a renewed ttl has already replaced
// the old deadline. The live entry is still checked before deleting: a deadline whose entry
// is gone or not yet expired is dropped without effect.
func (c *cedarImpl) collectExpired() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.clock()
	nowNanos := now.UnixNano()
	removed := 0

	for {
		item, ok := c.schedule.Peek()
		if !ok || item.Priority > nowNanos {
			break
		}
		c.schedule.PopMin()

		entry, found := c.data.Load(item.Key)
		if !found || entry.ExpiresAt.IsZero() {
			continue
		}
		if !entry.Expired(now) {
			// keep the key scheduled (only happens if wall and monotonic clock disagree)
			if deadline := entry.ExpiresAt.UnixNano(); deadline > nowNanos {
				c.schedule.AddItem(item.Key, deadline)
			}
			continue
		}

		c.expireLocked(item.Key)
		removed++
	}

	return removed
}
