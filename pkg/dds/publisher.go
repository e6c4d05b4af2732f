package dds

import (
	"sync"

	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/qos"
)

// Publisher groups DataWriters created against one participant, mirroring
// the DCPS entity hierarchy's Publisher/DataWriter relationship.
type Publisher struct {
	mu sync.Mutex

	participant *DomainParticipant
	defaultQos  qos.Policies
	writers     []*DataWriter
	deleted     bool
}

// CreateDataWriter creates a new DataWriter for topic, announced to peers
// via SEDP immediately.
func (p *Publisher) CreateDataWriter(topic *Topic, q qos.Policies) (*DataWriter, error) {
	p.mu.Lock()
	if p.deleted {
		p.mu.Unlock()
		return nil, ddserror.AlreadyDeleted("create_datawriter", topic.Name)
	}
	p.mu.Unlock()

	dw, err := p.participant.createDataWriter(topic, q)
	if err != nil {
		return nil, err
	}
	dw.publisher = p
	dw.participant = p.participant

	p.mu.Lock()
	p.writers = append(p.writers, dw)
	p.mu.Unlock()

	return dw, nil
}

// DeleteDataWriter retires dw, detaching it from this publisher and from the
// participant's topic and wire-lookup tables. Fails with PreconditionNotMet
// if dw was not created through this publisher, or AlreadyDeleted if it was
// already retired.
func (p *Publisher) DeleteDataWriter(dw *DataWriter) error {
	if dw.publisher != p {
		return ddserror.PreconditionNotMet("delete_datawriter", dw.topic.Name)
	}

	dw.mu.Lock()
	if dw.deleted {
		dw.mu.Unlock()
		return ddserror.AlreadyDeleted("delete_datawriter", dw.topic.Name)
	}
	dw.deleted = true
	dw.mu.Unlock()

	dw.participant.unregisterDataWriter(dw)

	p.mu.Lock()
	p.writers = removeDataWriter(p.writers, dw)
	p.mu.Unlock()

	return nil
}

// Delete retires the publisher. Fails with PreconditionNotMet while any
// DataWriter created through it still exists, and AlreadyDeleted if it was
// already retired.
func (p *Publisher) Delete() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deleted {
		return ddserror.AlreadyDeleted("delete_publisher", "")
	}
	if len(p.writers) > 0 {
		return ddserror.PreconditionNotMet("delete_publisher", "")
	}
	p.deleted = true
	return nil
}

func removeDataWriter(list []*DataWriter, dw *DataWriter) []*DataWriter {
	for i, w := range list {
		if w == dw {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
