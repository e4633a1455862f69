package wren

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFunctionSignature_String(t *testing.T) {
	tests := []struct {
		sig  FunctionSignature
		want string
	}{
		{Setter("value"), "value=(_)"},
		{Getter("value"), "value"},
		{Function("call", 2), "call(_,_)"},
		{Function("call", 0), "call()"},
		{Function("f", 3), "f(_,_,_)"},
	}
	for _, tc := range tests {
		t.Run(tc.want, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.sig.String())
		})
	}
}

func TestFunctionSignature_Slots(t *testing.T) {
	assert.Equal(t, 1, Getter("x").Slots())
	assert.Equal(t, 2, Setter("x").Slots())
	assert.Equal(t, 3, Function("call", 2).Slots())
}
