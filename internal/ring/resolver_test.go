package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/windkit/leo-storage/internal/model"
)

type fakeMembers struct{ nodes []string }

func (f fakeMembers) RunningMembers() []string { return f.nodes }

func TestLookupByKeyIsDeterministic(t *testing.T) {
	members := fakeMembers{nodes: []string{"a", "b", "c", "d"}}
	r := New(members, Quorum{N: 3, W: 2, R: 2, D: 2}, "a")

	set1, err := r.LookupByKey(model.OpGet, []byte("some/key"))
	assert.NoError(t, err)
	set2, err := r.LookupByKey(model.OpGet, []byte("some/key"))
	assert.NoError(t, err)
	assert.Equal(t, set1.Nodes, set2.Nodes, "repeated lookups for the same key must agree")
	assert.Equal(t, uint8(3), set1.N)
}

func TestLookupByKeyNoRedundancyWhenNoMembers(t *testing.T) {
	r := New(fakeMembers{}, Quorum{N: 3, W: 2, R: 2, D: 2}, "a")
	_, err := r.LookupByKey(model.OpGet, []byte("k"))
	assert.Error(t, err)
}

func TestLookupByKeyGetPrefersRendezvousPrimary(t *testing.T) {
	members := fakeMembers{nodes: []string{"a", "b", "c"}}
	r := New(members, Quorum{N: 3, W: 2, R: 2, D: 2}, "a")

	set, err := r.LookupByKey(model.OpGet, []byte("foo"))
	assert.NoError(t, err)
	assert.True(t, r.HasChargeOfNode([]byte("foo"), set.Nodes[0].ID),
		"GET ordering must put the rendezvous-hash owner first")
}

func TestHasChargeOfNodeFalseWhenNoMembers(t *testing.T) {
	r := New(fakeMembers{}, Quorum{}, "a")
	assert.False(t, r.HasChargeOfNode([]byte("k"), "a"))
}

func TestVnodeIDAndChecksumAreStable(t *testing.T) {
	a := VnodeID([]byte("same-key"))
	b := VnodeID([]byte("same-key"))
	assert.Equal(t, a, b)

	c1 := Checksum([]byte("payload"))
	c2 := Checksum([]byte("payload"))
	assert.Equal(t, c1, c2)
	assert.NotEqual(t, c1, Checksum([]byte("other payload")))
}
