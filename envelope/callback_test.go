package envelope

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUserCallbackExecutesFn(t *testing.T) {
	ran := false
	cb := NewUserCallback(func() error { ran = true; return nil })
	assert.NoError(t, cb.Execute())
	assert.True(t, ran)
}

func TestUserCallbackNilFnIsNoop(t *testing.T) {
	cb := Callback{Kind: KindUser}
	assert.NoError(t, cb.Execute())
}

func TestUserCallbackPropagatesError(t *testing.T) {
	want := errors.New("boom")
	cb := NewUserCallback(func() error { return want })
	assert.Equal(t, want, cb.Execute())
}

type fakeCommitter struct {
	calls  int
	failFor int
}

func (f *fakeCommitter) Commit(ref SourceRef) error {
	f.calls++
	if f.calls <= f.failFor {
		return errors.New("transient")
	}
	return nil
}

func TestCommitCallbackSucceedsImmediately(t *testing.T) {
	c := &fakeCommitter{}
	cb := NewCommitCallback(c, "ref")
	assert.NoError(t, cb.Execute())
	assert.Equal(t, 1, c.calls)
}

func TestExecuteChainStopsAtFirstError(t *testing.T) {
	var order []int
	cbs := []Callback{
		NewUserCallback(func() error { order = append(order, 1); return nil }),
		NewUserCallback(func() error { order = append(order, 2); return errors.New("fail") }),
		NewUserCallback(func() error { order = append(order, 3); return nil }),
	}
	err := ExecuteChain(cbs)
	assert.Error(t, err)
	assert.Equal(t, []int{1, 2}, order)
}

func TestExecuteChainRunsCommitLast(t *testing.T) {
	var order []string
	c := &fakeCommitter{}
	cbs := []Callback{
		NewUserCallback(func() error { order = append(order, "user"); return nil }),
		NewCommitCallback(c, "ref"),
	}
	assert.NoError(t, ExecuteChain(cbs))
	assert.Equal(t, []string{"user"}, order)
	assert.Equal(t, 1, c.calls)
}
