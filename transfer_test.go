package replica

import (
	"errors"
	"testing"
)

func TestTagFollowsRegistrationOrder(t *testing.T) {
	ts := testTransfers(t)

	tag, err := ts.Tag(&testState{})
	if err != nil {
		t.Fatalf("Tag(testState): %v", err)
	}
	if tag != 0 {
		t.Fatalf("testState tag = %d, want 0", tag)
	}

	tag, err = ts.Tag(&altState{})
	if err != nil {
		t.Fatalf("Tag(altState): %v", err)
	}
	if tag != 1 {
		t.Fatalf("altState tag = %d, want 1", tag)
	}
}

func TestNewResolvesTag(t *testing.T) {
	ts := testTransfers(t)

	state, err := ts.New(1)
	if err != nil {
		t.Fatalf("New(1): %v", err)
	}
	if _, ok := state.(*altState); !ok {
		t.Fatalf("New(1) = %T, want *altState", state)
	}
}

func TestUnknownTag(t *testing.T) {
	ts := testTransfers(t)

	for _, tag := range []int32{-1, 2, 1000} {
		_, err := ts.New(tag)

		var unknown UnknownTagError
		if !errors.As(err, &unknown) {
			t.Fatalf("New(%d) error = %v, want UnknownTagError", tag, err)
		}
	}
}

func TestUnregisteredType(t *testing.T) {
	ts := testTransfers(t)

	_, err := ts.Tag(&strayState{})

	var unreg *UnregisteredTypeError
	if !errors.As(err, &unreg) {
		t.Fatalf("Tag(strayState) error = %v, want UnregisteredTypeError", err)
	}
}

func TestDuplicateRegistration(t *testing.T) {
	_, err := NewTransfers(
		func() Transfer { return &testState{} },
		func() Transfer { return &testState{} },
	)
	if err == nil {
		t.Fatal("registering the same name twice must fail")
	}
}
