package dds

import (
	"sync"

	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/reader"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
)

// Sample is one value taken from a DataReader's history, alongside the
// metadata an application needs to act on it.
type Sample struct {
	Data         []byte
	Kind         rtpstypes.ChangeKind
	SourceWriter rtpstypes.GUID
}

// DataReader subscribes to samples of one topic. It owns a StatefulReader;
// matching against remote DataWriters is driven entirely by SEDP once the
// reader has been announced.
type DataReader struct {
	mu sync.Mutex

	topic       *Topic
	qos         qos.Policies
	rtps        *reader.StatefulReader
	participant *DomainParticipant
	subscriber  *Subscriber
	deleted     bool
}

// Guid returns the reader's global identity.
func (dr *DataReader) Guid() rtpstypes.GUID { return dr.rtps.Guid }

// Topic returns the topic this reader subscribes to.
func (dr *DataReader) Topic() *Topic { return dr.topic }

// Qos returns the reader's currently active QoS policies.
func (dr *DataReader) Qos() qos.Policies {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	return dr.qos
}

// SetQos replaces the reader's QoS policies. Reliability cannot change after
// creation; requesting a different kind is rejected with ImmutablePolicy.
func (dr *DataReader) SetQos(q qos.Policies) error {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	if dr.deleted {
		return ddserror.AlreadyDeleted("set_qos", dr.topic.Name)
	}
	if q.Reliability.Kind != dr.qos.Reliability.Kind {
		return ddserror.ImmutablePolicy("set_qos", dr.topic.Name)
	}
	if err := q.CheckSelfConsistent("set_qos", dr.topic.Name); err != nil {
		return err
	}
	dr.qos = q
	return nil
}

// Take returns every sample currently held and removes them from the
// reader's history, matching DDS take() semantics. Returns nil once the
// reader has been deleted.
func (dr *DataReader) Take() []Sample {
	dr.mu.Lock()
	deleted := dr.deleted
	dr.mu.Unlock()
	if deleted {
		return nil
	}
	changes := dr.rtps.Cache.Take(nil, nil, nil)
	out := make([]Sample, len(changes))
	for i, c := range changes {
		out[i] = Sample{Data: c.Data, Kind: c.Kind, SourceWriter: c.WriterGuid}
	}
	return out
}

// Read behaves like Take but leaves the samples in the reader's history.
// Returns nil once the reader has been deleted.
func (dr *DataReader) Read() []Sample {
	dr.mu.Lock()
	deleted := dr.deleted
	dr.mu.Unlock()
	if deleted {
		return nil
	}
	changes := dr.rtps.Cache.Read(nil, nil, nil)
	out := make([]Sample, len(changes))
	for i, c := range changes {
		out[i] = Sample{Data: c.Data, Kind: c.Kind, SourceWriter: c.WriterGuid}
	}
	return out
}

// IsMatchedWith reports whether writerGuid is currently a matched writer of
// this reader.
func (dr *DataReader) IsMatchedWith(writerGuid rtpstypes.GUID) bool {
	_, ok := dr.rtps.MatchedWriterLookup(writerGuid)
	return ok
}
