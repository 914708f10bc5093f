package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := stderrors.New("boom")
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", base, Internal},
		{"direct", New(RecordNotFound, "no lead"), RecordNotFound},
		{"wrapped by fmt", fmt.Errorf("execute: %w", Wrap(Transport, "timeout", base)), Transport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestUnwrapAndDetail(t *testing.T) {
	base := stderrors.New("eof")
	e := Wrap(MalformedOutput, "oracle output is not JSON", base).WithDetail("Sure! here you go")

	assert.True(t, stderrors.Is(e, base))
	assert.Equal(t, "Sure! here you go", DetailOf(fmt.Errorf("parse: %w", e)))
	assert.Equal(t, "oracle output is not JSON", MessageOf(e))
	assert.Equal(t, "malformed_output: oracle output is not JSON: eof", e.Error())
	assert.Empty(t, DetailOf(base))
}
