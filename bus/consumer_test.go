package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommitRejectsForeignRef(t *testing.T) {
	c := &Consumer{}
	err := c.Commit("not-a-msgref")
	assert.Error(t, err)
}
