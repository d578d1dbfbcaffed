package dbq

// Parameter describes one positional binding of a stored procedure call.
// The list order passed to Call defines positions 1..N. The type is sealed:
// the only variants are InParameter and OutParameter.
type Parameter interface {
	parameter()
}

// InParameter binds a value at its position. The value is null-coerced
// before binding, so an empty string becomes a SQL NULL.
type InParameter struct {
	Value any
}

func (InParameter) parameter() {}

// OutParameter registers an output of the declared data type at its
// position. After execution its value is read back, trimmed, and stored in
// the procedure result under FieldName.
type OutParameter struct {
	FieldName string
	DataType  string
}

func (OutParameter) parameter() {}

// Input wraps a plain value as a stored procedure input parameter.
func Input(value any) Parameter {
	return InParameter{Value: value}
}

// Output declares a stored procedure output parameter of the given data type,
// keyed in the result by fieldName.
func Output(dataType, fieldName string) Parameter {
	return OutParameter{FieldName: fieldName, DataType: dataType}
}
