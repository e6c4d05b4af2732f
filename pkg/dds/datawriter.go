package dds

import (
	"sync"

	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/qos"
	"github.com/odin-rtps/rtps/pkg/rtpstypes"
	"github.com/odin-rtps/rtps/pkg/writer"
)

// DataWriter publishes samples of one topic. It owns a StatefulWriter whose
// reliability follows the QoS the writer was created with; matching against remote DataReaders is driven entirely by
// SEDP once the writer has been announced.
type DataWriter struct {
	mu sync.Mutex

	topic       *Topic
	qos         qos.Policies
	rtps        *writer.StatefulWriter
	participant *DomainParticipant
	publisher   *Publisher
	deleted     bool
}

// Guid returns the writer's global identity.
func (dw *DataWriter) Guid() rtpstypes.GUID { return dw.rtps.Guid }

// Topic returns the topic this writer publishes on.
func (dw *DataWriter) Topic() *Topic { return dw.topic }

// Qos returns the writer's currently active QoS policies.
func (dw *DataWriter) Qos() qos.Policies {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	return dw.qos
}

// SetQos replaces the writer's QoS policies. Reliability cannot change after
// creation; requesting a different kind is rejected with ImmutablePolicy.
func (dw *DataWriter) SetQos(q qos.Policies) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()
	if dw.deleted {
		return ddserror.AlreadyDeleted("set_qos", dw.topic.Name)
	}
	if q.Reliability.Kind != dw.qos.Reliability.Kind {
		return ddserror.ImmutablePolicy("set_qos", dw.topic.Name)
	}
	if err := q.CheckSelfConsistent("set_qos", dw.topic.Name); err != nil {
		return err
	}
	dw.qos = q
	return nil
}

// Write appends a new alive sample to the writer's history. Delivery to
// matched readers happens on the participant's next transmit pass. A no-op
// once the writer has been deleted.
func (dw *DataWriter) Write(data []byte) {
	dw.mu.Lock()
	deleted := dw.deleted
	dw.mu.Unlock()
	if deleted {
		return
	}
	dw.rtps.NewChange(rtpstypes.ChangeKindAlive, data, rtpstypes.InstanceHandle{})
}

// Dispose appends a disposal for the given instance, telling matched readers
// the instance no longer has a live writer. A no-op once the writer has been
// deleted.
func (dw *DataWriter) Dispose(instance rtpstypes.InstanceHandle) {
	dw.mu.Lock()
	deleted := dw.deleted
	dw.mu.Unlock()
	if deleted {
		return
	}
	dw.rtps.NewChange(rtpstypes.ChangeKindNotAliveDisposed, nil, instance)
}

// IsMatchedWith reports whether readerGuid is currently a matched reader of
// this writer.
func (dw *DataWriter) IsMatchedWith(readerGuid rtpstypes.GUID) bool {
	_, ok := dw.rtps.MatchedReaderLookup(readerGuid)
	return ok
}
