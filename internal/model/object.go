// Package model holds the wire-agnostic data model shared across the
// core: Object, Metadata, ReadParams, RedundancySet, CompactionStats
// and WatchdogAlarm.
package model

import "fmt"

// Method distinguishes a mutation's intent; DELETE is carried as a PUT
// with Del set.
type Method uint8

const (
	MethodPut Method = iota
	MethodDelete
)

func (m Method) String() string {
	if m == MethodDelete {
		return "DELETE"
	}
	return "PUT"
}

// Object is the unit the Handler and Replicator pass around. Del=true
// implies DataSize=0 and Data is empty.
type Object struct {
	AddressID     uint32
	Key           []byte
	Data          []byte
	DataSize      uint64
	ContentIndex  uint32
	ParentKey     []byte
	Clock         uint64
	Timestamp     uint64
	Checksum      uint64
	Method        Method
	Del           bool
	ReqID         uint64
	RingHash      uint64
	NumOfReplicas uint8
	// CNumber is the chunk count for a chunked object's parent key; 0
	// for non-chunked objects. A multi-part PUT sets it on the parent
	// Object so the stored metadata carries it for a later
	// PUT-with-del=true to discover during chunked teardown.
	CNumber uint32
}

// Metadata is a projection of Object without the body.
type Metadata struct {
	AddressID     uint32
	Key           []byte
	DataSize      uint64
	ContentIndex  uint32
	ParentKey     []byte
	Clock         uint64
	Timestamp     uint64
	Checksum      uint64
	Del           bool
	RingHash      uint64
	NumOfReplicas uint8
	// CNumber is the chunk count; 0 for non-chunked objects.
	CNumber uint32
}

// MetadataFromObject projects an Object into its Metadata.
func MetadataFromObject(o *Object) Metadata {
	return Metadata{
		AddressID:     o.AddressID,
		Key:           o.Key,
		DataSize:      o.DataSize,
		ContentIndex:  o.ContentIndex,
		ParentKey:     o.ParentKey,
		Clock:         o.Clock,
		Timestamp:     o.Timestamp,
		Checksum:      o.Checksum,
		Del:           o.Del,
		RingHash:      o.RingHash,
		NumOfReplicas: o.NumOfReplicas,
		CNumber:       o.CNumber,
	}
}

// ReadParams bundles a GET request's parameters.
type ReadParams struct {
	Ref           string
	AddressID     uint32
	Key           []byte
	ETag          uint64 // zero disables the if-match short-circuit
	StartPos      int64  // -1 means "whole object"
	EndPos        int64  // -1 means "whole object"
	NumOfReplicas uint8
	Quorum        uint8
	ReqID         uint64
}

// WholeObject sentinels for StartPos/EndPos.
const WholeObject = -1

// Node is a single member of a RedundancySet.
type Node struct {
	ID        string
	Available bool
}

func (n Node) String() string { return n.ID }

// RedundancySet is a read-only snapshot valid for one request.
type RedundancySet struct {
	Nodes    []Node
	N        uint8
	W        uint8
	R        uint8
	D        uint8
	RingHash uint64
}

func (rs RedundancySet) Available() []Node {
	out := make([]Node, 0, len(rs.Nodes))
	for _, n := range rs.Nodes {
		if n.Available {
			out = append(out, n)
		}
	}
	return out
}

// CompactionStatus is the compactor FSM's externally visible state.
type CompactionStatus uint8

const (
	CompactionIdle CompactionStatus = iota
	CompactionRunning
)

func (s CompactionStatus) String() string {
	if s == CompactionRunning {
		return "RUNNING"
	}
	return "IDLE"
}

// CompactionStats is what the watchdog polls, locally or over peer RPC.
type CompactionStats struct {
	Status         CompactionStatus
	PendingTargets []string // ContainerId values
	LatestExecTime uint64
}

// AlarmLevel classifies a WatchdogAlarm's severity.
type AlarmLevel uint8

const (
	AlarmInfo AlarmLevel = iota
	AlarmWarning
	AlarmError
	AlarmCritical
)

// WatchdogAlarm is published on the watchdog's two channels.
type WatchdogAlarm struct {
	Level AlarmLevel
	Props map[string]interface{}
}

// Op distinguishes GET-shaped lookups from PUT-shaped ones for the
// Redundancy Resolver's ordering preference.
type Op uint8

const (
	OpGet Op = iota
	OpPut
)

func (o Op) String() string {
	if o == OpPut {
		return "put"
	}
	return "get"
}

// ChunkKey builds the synthetic key for chunk i of parent, per
// parent ‖ 0x0A ‖ ascii(index).
func ChunkKey(parent []byte, index uint32) []byte {
	suffix := fmt.Sprintf("\n%d", index)
	out := make([]byte, 0, len(parent)+len(suffix))
	out = append(out, parent...)
	out = append(out, suffix...)
	return out
}
