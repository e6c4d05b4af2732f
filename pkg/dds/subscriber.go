package dds

import (
	"sync"

	"github.com/odin-rtps/rtps/pkg/ddserror"
	"github.com/odin-rtps/rtps/pkg/qos"
)

// Subscriber groups DataReaders created against one participant, mirroring
// the DCPS entity hierarchy's Subscriber/DataReader relationship.
type Subscriber struct {
	mu sync.Mutex

	participant *DomainParticipant
	defaultQos  qos.Policies
	readers     []*DataReader
	deleted     bool
}

// CreateDataReader creates a new DataReader for topic, announced to peers
// via SEDP immediately.
func (s *Subscriber) CreateDataReader(topic *Topic, q qos.Policies) (*DataReader, error) {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return nil, ddserror.AlreadyDeleted("create_datareader", topic.Name)
	}
	s.mu.Unlock()

	dr, err := s.participant.createDataReader(topic, q)
	if err != nil {
		return nil, err
	}
	dr.subscriber = s
	dr.participant = s.participant

	s.mu.Lock()
	s.readers = append(s.readers, dr)
	s.mu.Unlock()

	return dr, nil
}

// DeleteDataReader retires dr, detaching it from this subscriber and from
// the participant's topic and wire-lookup tables. Fails with
// PreconditionNotMet if dr was not created through this subscriber, or
// AlreadyDeleted if it was already retired.
func (s *Subscriber) DeleteDataReader(dr *DataReader) error {
	if dr.subscriber != s {
		return ddserror.PreconditionNotMet("delete_datareader", dr.topic.Name)
	}

	dr.mu.Lock()
	if dr.deleted {
		dr.mu.Unlock()
		return ddserror.AlreadyDeleted("delete_datareader", dr.topic.Name)
	}
	dr.deleted = true
	dr.mu.Unlock()

	dr.participant.unregisterDataReader(dr)

	s.mu.Lock()
	s.readers = removeDataReader(s.readers, dr)
	s.mu.Unlock()

	return nil
}

// Delete retires the subscriber. Fails with PreconditionNotMet while any
// DataReader created through it still exists, and AlreadyDeleted if it was
// already retired.
func (s *Subscriber) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleted {
		return ddserror.AlreadyDeleted("delete_subscriber", "")
	}
	if len(s.readers) > 0 {
		return ddserror.PreconditionNotMet("delete_subscriber", "")
	}
	s.deleted = true
	return nil
}

func removeDataReader(list []*DataReader, dr *DataReader) []*DataReader {
	for i, r := range list {
		if r == dr {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
