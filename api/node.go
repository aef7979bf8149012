package api

import "net/netip"

type Role int

const (
	RoleBridge Role = iota
	RoleController
	RoleHost
	RoleClient
	RoleAuxiliary
)

func (r Role) String() string {
	switch r {
	case RoleBridge:
		return "bridge"
	case RoleController:
		return "controller"
	case RoleHost:
		return "host"
	case RoleClient:
		return "client"
	case RoleAuxiliary:
		return "auxiliary"
	}
	return "unknown"
}

// Node is one emulated entity of the testbed. Handle is owned by the driver
// that instantiated the node and is nil until instantiation succeeds.
type Node struct {
	Name   string
	Role   Role
	Handle any

	Interfaces    []NodeInterface
	IPAssignments map[string]IPAssignment // interface name -> address
	Routes        []Route
}

// NodeInterface is one end of a veth pair. Peer lives in the other node.
type NodeInterface struct {
	Local string
	Peer  string
	// PeerNode is the name of the node holding Peer
	PeerNode string
}

type IPAssignment struct {
	Addr      netip.Addr
	PrefixLen int
}

// Route is a static route towards Dst through the interface Via.
type Route struct {
	Dst netip.Prefix
	Via string
}

func NewNode(name string, role Role) *Node {
	return &Node{
		Name:          name,
		Role:          role,
		IPAssignments: make(map[string]IPAssignment),
	}
}

// InstantiateOptions are handed to the driver when the backing resource is
// created.
type InstantiateOptions struct {
	Image       string
	NetworkMode string
	Ports       map[string]string // container port -> host port
	Binds       []string
	Cmd         []string
	Privileged  bool
}
