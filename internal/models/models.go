package models

import "time"

type NodeType int16

const (
	NodeTypeDir     NodeType = 0
	NodeTypeFile    NodeType = 1
	NodeTypeCharDev NodeType = 2
	NodeTypeOther   NodeType = 3
)

// NodeMeta is what stat reports about a vnode.
type NodeMeta struct {
	Ino   uint64   `json:"ino"`
	Dev   uint64   `json:"dev"`
	Type  NodeType `json:"type"`
	Mode  uint32   `json:"mode"` // umode_t
	Nlink uint64   `json:"nlink"`
	Rdev  uint64   `json:"rdev"`
	Size  int64    `json:"size"`
}

type EventOp string

const (
	EventMkdir  EventOp = "mkdir"
	EventUnlink EventOp = "unlink"
	EventLink   EventOp = "link"
	EventRename EventOp = "rename"
	EventCreate EventOp = "create"
)

// Event records one successful structural change of the tree.
type Event struct {
	ID        int64     `json:"id"`
	Op        EventOp   `json:"op"`
	Path      string    `json:"path"`
	Target    string    `json:"target,omitempty"`
	Ino       uint64    `json:"ino"`
	RequestID string    `json:"request_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
