package node

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netlink"
	"go.uber.org/zap"

	"Testbed/api"
)

// hostLinks stands in for the host namespace.
type hostLinks struct {
	links   map[string]bool
	peers   map[string]string
	deleted []string
}

func stubHostLinks(t *testing.T) *hostLinks {
	t.Helper()
	h := &hostLinks{links: make(map[string]bool), peers: make(map[string]string)}
	origAdd, origByName, origDel := linkAdd, linkByName, linkDel
	t.Cleanup(func() { linkAdd, linkByName, linkDel = origAdd, origByName, origDel })

	linkAdd = func(l netlink.Link) error {
		v := l.(*netlink.Veth)
		h.links[v.Name] = true
		h.links[v.PeerName] = true
		h.peers[v.Name], h.peers[v.PeerName] = v.PeerName, v.Name
		return nil
	}
	linkByName = func(name string) (netlink.Link, error) {
		if !h.links[name] {
			return nil, errors.New("link not found")
		}
		return &netlink.Dummy{LinkAttrs: netlink.LinkAttrs{Name: name}}, nil
	}
	linkDel = func(l netlink.Link) error {
		h.deleted = append(h.deleted, l.Attrs().Name)
		delete(h.links, l.Attrs().Name)
		delete(h.links, h.peers[l.Attrs().Name])
		return nil
	}
	return h
}

func TestConnectFailureRemovesHostVeth(t *testing.T) {
	host := stubHostLinks(t)
	cm := &ContainerManager{log: zap.NewNop()}

	// no process has pid -1, so moving the first end fails
	n := api.NewNode("office1", api.RoleClient)
	n.Handle = &containerHandle{ID: "a", Pid: -1}
	br := api.NewNode("brint", api.RoleBridge)
	br.Handle = &containerHandle{ID: "b", Pid: -1}

	err := cm.Connect(context.Background(), n, br, "office1brint", "brintoffice1")
	require.Error(t, err)

	assert.Empty(t, host.links)
	assert.Equal(t, []string{"office1brint"}, host.deleted)
	assert.Empty(t, n.Interfaces)
	assert.Empty(t, br.Interfaces)
}

func TestRemoveHostLinksSkipsMovedEnds(t *testing.T) {
	host := stubHostLinks(t)
	host.links["brintbrext"] = true

	require.NoError(t, removeHostLinks("brextbrint", "brintbrext"))
	assert.Equal(t, []string{"brintbrext"}, host.deleted)
}

func TestRemoveTarget(t *testing.T) {
	n := api.NewNode("c1", api.RoleController)
	_, ok := removeTarget(n)
	assert.False(t, ok, "a node whose create was refused owns no container")

	n.Handle = &containerHandle{}
	target, ok := removeTarget(n)
	assert.True(t, ok)
	assert.Equal(t, "c1", target)

	n.Handle = &containerHandle{ID: "4f1e"}
	target, ok = removeTarget(n)
	assert.True(t, ok)
	assert.Equal(t, "4f1e", target)
}

func TestDeleteNeverCreatedIsNoop(t *testing.T) {
	// no docker client: nothing may be removed
	cm := &ContainerManager{log: zap.NewNop()}
	n := api.NewNode("c1", api.RoleController)

	require.NoError(t, cm.Delete(context.Background(), n))
	require.NoError(t, cm.Delete(context.Background(), n))
}
