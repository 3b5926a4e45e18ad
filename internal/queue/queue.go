// Package queue is the durable, at-least-once message queue contract
// of named topics, publish(qid, key, payload), and dynamic
// increase()/decrease() on consumer concurrency. Shaped after
// weed/notification.MessageQueue and its viper-driven
// LoadConfiguration wiring.
package queue

import "github.com/windkit/leo-storage/internal/config"

// Topic names lists.
const (
	TopicPerObject       = "PER_OBJECT"
	TopicSyncByVnodeID   = "SYNC_BY_VNODE_ID"
	TopicRebalance       = "REBALANCE"
	TopicAsyncDeleteObj  = "ASYNC_DELETE_OBJ"
	TopicAsyncDeleteDir  = "ASYNC_DELETE_DIR"
	TopicRecoveryNode    = "RECOVERY_NODE"
	TopicSyncObjWithDC   = "SYNC_OBJ_WITH_DC"
	TopicCompMetaWithDC  = "COMP_META_WITH_DC"
	TopicDelDir          = "DEL_DIR"
)

// Topics is the full set the watchdog adaptive controller throttles
// symmetrically.
var Topics = []string{
	TopicPerObject, TopicSyncByVnodeID, TopicRebalance, TopicAsyncDeleteObj,
	TopicRecoveryNode, TopicSyncObjWithDC, TopicCompMetaWithDC, TopicDelDir,
}

// Handle is a per-queue capability the adaptive controller calls
// instead of looking a queue up by name at the throttle site.
type Handle interface {
	Publish(key string, payload []byte) error
	SetConcurrency(delta int)
}

// Queue is the durable message queue. GetName/Initialize follow
// notification.MessageQueue's shape; there is no backend registry here,
// the process wiring (cmd/leo-storaged) picks which backend to use.
type Queue interface {
	GetName() string
	Initialize(cfg config.Configuration) error
	Handle(topic string) Handle
}
