package processor

import (
	"time"

	"github.com/sealbox/secretsd/internal/model"
)

// maybeScheduleRelock arms a one-shot relock timer after a successful
// data operation against a timeout-relock collection, if none is
// already running. Only split-plugin configurations use the lock-key
// cache this evicts — same-plugin encrypted-storage collections are
// never relocked here, since the plugin itself owns that lock state.
func (a *Actor) maybeScheduleRelock(meta *model.Collection) {
	if meta.UnlockSemantic != model.CustomLockTimeoutRelock {
		return
	}
	name := meta.Name
	a.relock.Schedule(name, millisToDuration(meta.CustomLockTimeoutMS), func(collection string) {
		a.log.Debug().Str("collection", collection).Msg("relocking collection after unlock timeout")
		a.cache.EvictCollectionKey(collection)
	})
}

func millisToDuration(ms int64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
