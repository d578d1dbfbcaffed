package dbq

import "testing"

func TestParameterConstructors(t *testing.T) {
	in, ok := Input("value").(InParameter)
	if !ok {
		t.Fatalf("Input did not produce an InParameter")
	}
	if in.Value != "value" {
		t.Errorf("expected 'value', got %v", in.Value)
	}

	out, ok := Output("VARCHAR", "STATUS").(OutParameter)
	if !ok {
		t.Fatalf("Output did not produce an OutParameter")
	}
	if out.DataType != "VARCHAR" || out.FieldName != "STATUS" {
		t.Errorf("unexpected output descriptor: %+v", out)
	}
}
