// Package refid mints the two identifiers the data model depends on:
// a per-outbound-call Reference used to correlate replies on a shared
// channel, and a per-request ReqID stamped once at Handler admission.
// They are deliberately different token families: a UUID for
// cross-process correlation, a snowflake id for the monotone-ish
// numeric req_id the wire model expects.
package refid

import (
	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
)

var node *snowflake.Node

func init() {
	// Node 1 is fine for a single-process core; a real deployment
	// would derive this from the node's assigned ring position.
	n, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	node = n
}

// NewReference mints a Reference token for one outbound peer call.
func NewReference() string {
	return uuid.NewString()
}

// NewReqID mints a req_id for one external request.
func NewReqID() uint64 {
	return uint64(node.Generate().Int64())
}
