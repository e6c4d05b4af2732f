package wire

import "encoding/binary"

// ParameterId identifies the meaning of a Parameter's value within a
// ParameterList, e.g. PID_TOPIC_NAME, PID_STATUS_INFO.
type ParameterId uint16

// PIDSentinel terminates every ParameterList on the wire.
const PIDSentinel ParameterId = 0x0001

// Status-info parameter used by DATA submessages carrying a dispose or
// unregister instead of a full sample.
const PIDStatusInfo ParameterId = 0x0071

const (
	StatusInfoDisposedFlag     byte = 0x01
	StatusInfoUnregisteredFlag byte = 0x02
)

// Parameter is one (id, length, value) entry of a ParameterList.
type Parameter struct {
	ID    ParameterId
	Value []byte
}

// ParameterList is an ordered sequence of Parameters, terminated on the
// wire by a zero-length PID_SENTINEL entry.
type ParameterList struct {
	Parameters []Parameter
}

// Get returns the value of the first parameter with the given id.
func (pl ParameterList) Get(id ParameterId) ([]byte, bool) {
	for _, p := range pl.Parameters {
		if p.ID == id {
			return p.Value, true
		}
	}
	return nil, false
}

// Encode appends pl's wire representation, including the terminating
// sentinel, to buf.
func (pl ParameterList) Encode(buf []byte, order binary.ByteOrder) []byte {
	for _, p := range pl.Parameters {
		buf = encodeParameter(buf, order, p)
	}
	return encodeParameter(buf, order, Parameter{ID: PIDSentinel})
}

func encodeParameter(buf []byte, order binary.ByteOrder, p Parameter) []byte {
	var hdr [4]byte
	order.PutUint16(hdr[0:2], uint16(p.ID))
	padded := (len(p.Value) + 3) &^ 3
	order.PutUint16(hdr[2:4], uint16(padded))
	buf = append(buf, hdr[:]...)
	buf = append(buf, p.Value...)
	return append(buf, make([]byte, padded-len(p.Value))...)
}

// DecodeParameterList reads parameters from the front of buf until the
// sentinel is encountered, returning whatever remains afterward.
func DecodeParameterList(buf []byte, order binary.ByteOrder) (ParameterList, []byte, error) {
	var pl ParameterList
	for {
		if len(buf) < 4 {
			return ParameterList{}, nil, ErrShortBuffer
		}
		id := ParameterId(order.Uint16(buf[0:2]))
		length := int(order.Uint16(buf[2:4]))
		buf = buf[4:]
		if id == PIDSentinel {
			return pl, buf, nil
		}
		if len(buf) < length {
			return ParameterList{}, nil, ErrShortBuffer
		}
		value := buf[:length]
		buf = buf[length:]
		if pad := length % 4; pad != 0 {
			skip := 4 - pad
			if len(buf) < skip {
				return ParameterList{}, nil, ErrShortBuffer
			}
			buf = buf[skip:]
		}
		pl.Parameters = append(pl.Parameters, Parameter{ID: id, Value: value})
	}
}
