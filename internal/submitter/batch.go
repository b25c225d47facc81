package submitter

// OpKind is what a batch operation does to its resource.
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// BatchOperation is one remote call of a batch. Target is empty for
// creates.
type BatchOperation struct {
	Kind     OpKind
	Resource string
	Slot     string
	Target   string
	Payload  any
}
