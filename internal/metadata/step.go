// Package metadata holds the durable table of step runtime state: one row
// per step, covering id, priority, scope, velocity, tag, status, epoch and
// the msg/trace strings a worker reports back. It does not hold DAG edges —
// those live in the blob store's Step definition document.
package metadata

import (
	"time"

	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusPending Status = "pending"
	StatusWorking Status = "working"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusCancel  Status = "cancel"
)

// terminalStatuses: success and cancel end a step's run. Status writes do
// not check it; blob GC uses it to decide when a closure is finished.
var terminalStatuses = map[Status]bool{
	StatusSuccess: true,
	StatusCancel:  true,
}

func (s Status) IsTerminal() bool { return terminalStatuses[s] }

// statusByInt is the stable integer encoding that upload-step and
// upload-steps bodies carry status in. The steps table stores the status
// name, not the integer, and responses expose the name.
var statusByInt = map[int]Status{
	0: StatusQueued,
	1: StatusPending,
	2: StatusWorking,
	3: StatusSuccess,
	4: StatusError,
	5: StatusCancel,
}

var intByStatus = map[Status]int{
	StatusQueued:  0,
	StatusPending: 1,
	StatusWorking: 2,
	StatusSuccess: 3,
	StatusError:   4,
	StatusCancel:  5,
}

func StatusFromInt(i int) (Status, bool) {
	s, ok := statusByInt[i]
	return s, ok
}

func (s Status) Int() int { return intByStatus[s] }

// Step is the GORM model for the metadata store's only table.
type Step struct {
	ID       string   `gorm:"primaryKey;column:id"`
	Priority int      `gorm:"column:priority;index:idx_steps_priority"`
	Scope    string   `gorm:"column:scope;index:idx_steps_scope"`
	Velocity *float64 `gorm:"column:velocity;index:idx_steps_velocity"`
	Tag      string   `gorm:"column:tag;index:idx_steps_tag"`
	Status   Status   `gorm:"column:status;index:idx_steps_status"`
	Epoch    int64    `gorm:"column:epoch;index:idx_steps_epoch"` // seconds since Unix epoch
	Msg      string   `gorm:"column:msg"`
	Trace    string   `gorm:"column:trace"`

	// Edges denormalizes the blob store's parent/child id lists at upload
	// time, as {"parents":[...],"children":[...]}. It is a read-only cache
	// for fetch-rows; the blob store's Step definition document remains
	// the sole source of truth consulted by DAG traversal.
	Edges datatypes.JSON `gorm:"column:edges"`
}

func (Step) TableName() string { return "steps" }

func nowEpoch() int64 { return time.Now().Unix() }
