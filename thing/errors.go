package thing

type ClientError string

func (e ClientError) Error() string {
	return string(e)
}

const (
	ErrPropertyNotFound  = ClientError("property not declared by thing description")
	ErrReadOnlyProperty  = ClientError("property is read-only")
	ErrWriteOnlyProperty = ClientError("property is write-only")
	ErrNotObservable     = ClientError("property is not observable")
	ErrActionNotFound    = ClientError("action not declared by thing description")
	ErrDecodeFailure     = ClientError("failed to decode payload")
)
