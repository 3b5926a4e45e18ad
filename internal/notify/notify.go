// Package notify implements the Event Notifier hooks: outbound
// notifications to downstream directory/remote-cluster syncers fired
// after each completed mutation. Shaped after weed/notification (a
// small interface plus a publish call), but scoped here to the queue
// topics this core actually owns (SYNC_BY_VNODE_ID, SYNC_OBJ_WITH_DC,
// COMP_META_WITH_DC) rather than a generic message bus.
package notify

import (
	"github.com/windkit/leo-storage/internal/model"
	"github.com/windkit/leo-storage/internal/queue"
)

// Notifier fires after a completed mutation; it never returns an
// error the caller must act on — publish failures are the queue
// handle's own concern (at-least-once redelivery), not the request
// path's.
type Notifier struct {
	vnodeSync queue.Handle
	dcSync    queue.Handle
	dcCompare queue.Handle
}

func New(q queue.Queue) *Notifier {
	return &Notifier{
		vnodeSync: q.Handle(queue.TopicSyncByVnodeID),
		dcSync:    q.Handle(queue.TopicSyncObjWithDC),
		dcCompare: q.Handle(queue.TopicCompMetaWithDC),
	}
}

// AfterMutation publishes a per-vnode sync record and a cross-DC
// object sync record for a completed PUT or DELETE.
func (n *Notifier) AfterMutation(obj model.Object) {
	key := objectKey(obj)
	payload := encodeSyncRecord(obj)
	_ = n.vnodeSync.Publish(key, payload)
	_ = n.dcSync.Publish(key, payload)
}

// AfterDirectoryTombstone publishes a cross-DC metadata-compare record
// for a directory that was just marked deleted.
func (n *Notifier) AfterDirectoryTombstone(dirKey []byte) {
	_ = n.dcCompare.Publish(string(dirKey), dirKey)
}

func objectKey(obj model.Object) string {
	return string(obj.Key)
}
