package replication

import (
	"errors"
	"fmt"

	"minikv/internal/protocol"
)

// ErrNotSupportedInRole is returned when a command is valid on the wire but
// refused by the role this server runs in.
var ErrNotSupportedInRole = errors.New("command not supported in this role")

// primaryReplicationID identifies this primary's replication history. It is
// fixed for the lifetime of the process.
const primaryReplicationID = "8371b4fb1155b71f4a04d3e1bc3e18c4a990aeeb"

// Role is the server's replication identity, fixed at startup. Exactly two
// implementations exist; callers that need role-specific behavior switch on
// the concrete type.
type Role interface {
	// InfoSection returns the body of the INFO replication response.
	InfoSection() string
}

// Primary accepts client writes and serves as the replication source.
type Primary struct {
	replicationID     string
	replicationOffset int64
	snapshot          []byte
}

// NewPrimary constructs the primary role with the fixed replication id, a
// zero offset, and the compiled-in empty-database snapshot.
func NewPrimary() *Primary {
	return &Primary{
		replicationID: primaryReplicationID,
		snapshot:      emptySnapshot(),
	}
}

func (p *Primary) InfoSection() string {
	return fmt.Sprintf("role:master\nmaster_replid:%s\nmaster_repl_offset:%d\n",
		p.replicationID, p.replicationOffset)
}

// fullResync is the primary's answer to any PSYNC: the FULLRESYNC status
// line and the snapshot blob, emitted back-to-back in one write.
func (p *Primary) fullResync() protocol.Element {
	return protocol.Concatenation{
		protocol.SimpleString(fmt.Sprintf("FULLRESYNC %s %d", p.replicationID, p.replicationOffset)),
		protocol.SnapshotBlob(p.snapshot),
	}
}

// HandlePsync answers a PSYNC request according to the server's role. A
// primary always replies with a full resync, whatever id and offset the
// replica requested; a replica refuses.
func HandlePsync(role Role, _ protocol.Psync) (protocol.Element, error) {
	switch r := role.(type) {
	case *Primary:
		return r.fullResync(), nil
	case *Replica:
		return nil, fmt.Errorf("psync: %w", ErrNotSupportedInRole)
	default:
		return nil, fmt.Errorf("psync: unhandled role %T", role)
	}
}

// emptySnapshot builds the minimal snapshot image sent to a freshly synced
// replica: magic and version, the EOF opcode, and a zeroed checksum.
func emptySnapshot() []byte {
	rdb := []byte("REDIS0009")
	rdb = append(rdb, 0xFF)
	rdb = append(rdb, 0, 0, 0, 0, 0, 0, 0, 0)
	return rdb
}
