// Package rtpstypes implements the wire-level value types of the RTPS
// protocol: GUIDs, entity ids, sequence numbers, locators, and the
// well-known constants used to identify builtin discovery endpoints.
package rtpstypes

import (
	"fmt"
	"math"
)

// GuidPrefix identifies a participant and is shared by all of its entities.
type GuidPrefix [12]byte

// EntityId identifies an entity within a participant: a 3-byte key plus a
// 1-byte kind octet that partitions endpoints into user-defined/builtin and
// reader/writer/group/participant, with-key/no-key.
type EntityId struct {
	Key  [3]byte
	Kind byte
}

// Entity kind octets, DDSI-RTPS 2.4 table 9.1.
const (
	EntityKindUserDefinedUnknown      byte = 0x00
	EntityKindUserDefinedWriterKey    byte = 0x02
	EntityKindUserDefinedWriterNoKey  byte = 0x03
	EntityKindUserDefinedReaderKey    byte = 0x04
	EntityKindUserDefinedReaderNoKey  byte = 0x07
	EntityKindUserDefinedWriterGroup  byte = 0x08
	EntityKindUserDefinedReaderGroup  byte = 0x09
	EntityKindBuiltinUnknown          byte = 0xc0
	EntityKindBuiltinParticipant      byte = 0xc1
	EntityKindBuiltinWriterKey        byte = 0xc2
	EntityKindBuiltinWriterNoKey      byte = 0xc3
	EntityKindBuiltinReaderKey        byte = 0xc4
	EntityKindBuiltinReaderNoKey      byte = 0xc7
	EntityKindBuiltinWriterGroup      byte = 0xc8
	EntityKindBuiltinReaderGroup      byte = 0xc9
)

var (
	GuidPrefixUnknown = GuidPrefix{}

	EntityIdUnknown = EntityId{Key: [3]byte{0, 0, 0}, Kind: EntityKindUserDefinedUnknown}

	EntityIdParticipant = EntityId{Key: [3]byte{0, 0, 0x01}, Kind: EntityKindBuiltinParticipant}

	EntityIdSPDPBuiltinParticipantAnnouncer = EntityId{Key: [3]byte{0, 0x01, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSPDPBuiltinParticipantDetector  = EntityId{Key: [3]byte{0, 0x01, 0x00}, Kind: EntityKindBuiltinReaderKey}

	EntityIdSEDPBuiltinTopicsAnnouncer = EntityId{Key: [3]byte{0, 0, 0x02}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSEDPBuiltinTopicsDetector  = EntityId{Key: [3]byte{0, 0, 0x02}, Kind: EntityKindBuiltinReaderKey}

	EntityIdSEDPBuiltinPublicationsAnnouncer = EntityId{Key: [3]byte{0, 0, 0x03}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSEDPBuiltinPublicationsDetector  = EntityId{Key: [3]byte{0, 0, 0x03}, Kind: EntityKindBuiltinReaderKey}

	EntityIdSEDPBuiltinSubscriptionsAnnouncer = EntityId{Key: [3]byte{0, 0, 0x04}, Kind: EntityKindBuiltinWriterKey}
	EntityIdSEDPBuiltinSubscriptionsDetector  = EntityId{Key: [3]byte{0, 0, 0x04}, Kind: EntityKindBuiltinReaderKey}

	EntityIdBuiltinParticipantMessageWriter = EntityId{Key: [3]byte{0, 0x02, 0x00}, Kind: EntityKindBuiltinWriterKey}
	EntityIdBuiltinParticipantMessageReader = EntityId{Key: [3]byte{0, 0x02, 0x00}, Kind: EntityKindBuiltinReaderKey}
)

// GUID globally identifies an RTPS entity: prefix ‖ entity id.
type GUID struct {
	Prefix   GuidPrefix
	EntityId EntityId
}

var GUIDUnknown = GUID{Prefix: GuidPrefixUnknown, EntityId: EntityIdUnknown}

func (g GUID) String() string {
	return fmt.Sprintf("%x.%x.%02x", g.Prefix, g.EntityId.Key, g.EntityId.Kind)
}

// SequenceNumber is a signed 64-bit, monotonically increasing per-writer
// counter starting at 1. It is transmitted on the wire as a (high, low)
// pair of a signed 32-bit and unsigned 32-bit word.
type SequenceNumber int64

// SequenceNumberUnknown is the sentinel that compares less than every valid
// sequence number; on the wire it is {high: math.MinInt32, low: math.MaxUint32}.
const SequenceNumberUnknown SequenceNumber = math.MinInt64

// High returns the wire-format high 32 bits.
func (s SequenceNumber) High() int32 { return int32(int64(s) >> 32) }

// Low returns the wire-format low 32 bits.
func (s SequenceNumber) Low() uint32 {
	if s == SequenceNumberUnknown {
		return math.MaxUint32
	}
	return uint32(int64(s) & 0xffffffff)
}

// SequenceNumberFromParts reconstructs a SequenceNumber from its wire
// representation. The unknown sentinel round-trips exactly.
func SequenceNumberFromParts(high int32, low uint32) SequenceNumber {
	if high == math.MinInt32 && low == math.MaxUint32 {
		return SequenceNumberUnknown
	}
	return SequenceNumber(int64(high)<<32 | int64(low))
}

// Locator kinds, DDSI-RTPS 2.4 table 9.3.
const (
	LocatorKindInvalid  int32 = -1
	LocatorKindReserved int32 = 0
	LocatorKindUDPv4    int32 = 1
	LocatorKindUDPv6    int32 = 2
)

const LocatorPortInvalid uint32 = 0

// Locator identifies a transport address: kind, port, and a 16-byte address
// field (IPv4-mapped in the low 4 bytes for UDPv4, full 16 bytes for UDPv6).
type Locator struct {
	Kind    int32
	Port    uint32
	Address [16]byte
}

var LocatorInvalid = Locator{Kind: LocatorKindInvalid, Port: LocatorPortInvalid}

// NewLocatorUDPv4 builds a UDPv4 locator from a 4-byte address and port.
func NewLocatorUDPv4(a [4]byte, port uint32) Locator {
	var loc Locator
	loc.Kind = LocatorKindUDPv4
	loc.Port = port
	copy(loc.Address[12:], a[:])
	return loc
}

// IPv4 extracts the low 4 bytes of a UDPv4 locator's address field.
func (l Locator) IPv4() [4]byte {
	var a [4]byte
	copy(a[:], l.Address[12:])
	return a
}

// ProtocolVersion is the RTPS protocol version carried in the message header.
type ProtocolVersion struct {
	Major, Minor byte
}

var ProtocolVersion2_4 = ProtocolVersion{Major: 2, Minor: 4}

// VendorId identifies the implementation that produced a message.
type VendorId [2]byte

// VendorIdUnknown per the standard; implementations not registered with the
// OMG use this value.
var VendorIdUnknown = VendorId{0x00, 0x00}

// ChangeKind classifies a cache change's effect on its instance.
type ChangeKind int

const (
	ChangeKindAlive ChangeKind = iota
	ChangeKindNotAliveDisposed
	ChangeKindNotAliveUnregistered
	ChangeKindAliveFiltered
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeKindAlive:
		return "ALIVE"
	case ChangeKindNotAliveDisposed:
		return "NOT_ALIVE_DISPOSED"
	case ChangeKindNotAliveUnregistered:
		return "NOT_ALIVE_UNREGISTERED"
	case ChangeKindAliveFiltered:
		return "ALIVE_FILTERED"
	default:
		return "UNKNOWN"
	}
}

// TopicKind distinguishes keyed (WITH_KEY) from unkeyed (NO_KEY) topics.
type TopicKind int

const (
	TopicKindWithKey TopicKind = iota
	TopicKindNoKey
)

// ReliabilityKind is the endpoint-level reliability setting.
type ReliabilityKind int

const (
	ReliabilityBestEffort ReliabilityKind = iota
	ReliabilityReliable
)

// InstanceHandle is the 16-byte key hash identifying a keyed instance.
type InstanceHandle [16]byte
