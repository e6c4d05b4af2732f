package dds

// Topic names a stream of samples of a given type, the unit DataWriters and
// DataReaders are matched on.
type Topic struct {
	Name     string
	TypeName string
}

// NewTopic returns a topic description. Topics are not entities in their
// own right on the wire: they only exist to label the DataWriters and
// DataReaders created against them.
func NewTopic(name, typeName string) *Topic {
	return &Topic{Name: name, TypeName: typeName}
}
