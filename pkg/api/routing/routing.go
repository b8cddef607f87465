// Package routing holds the table of routes whose bodies travel encrypted.
//
// The table is a tree of literal path segments. Each node may carry a
// per-method EncryptedRoute policy and a flag marking that everything below
// it is a path parameter (so /api/files/list/any/depth matches the "list"
// node). Lookup is pure; the crypto middleware consults it on every request.
package routing

import (
	"net/http"
	"strings"
)

// EncryptedRoute is the encryption policy for one (method, path) pair.
type EncryptedRoute struct {
	// EncryptedBody marks the request body as an ExEF container.
	EncryptedBody bool

	// EncryptedResponse marks the response body for ExEF wrapping.
	EncryptedResponse bool

	// ExcludedStatuses lists response status codes sent as cleartext,
	// typically auth failures the client must read without a session.
	ExcludedStatuses []int
}

// DefaultRoute returns the standard policy: both directions encrypted,
// credential failures excluded.
func DefaultRoute() EncryptedRoute {
	return EncryptedRoute{
		EncryptedBody:     true,
		EncryptedResponse: true,
		ExcludedStatuses:  []int{http.StatusUnauthorized},
	}
}

// Excludes reports whether responses with the given status bypass
// encryption.
func (r EncryptedRoute) Excludes(status int) bool {
	for _, s := range r.ExcludedStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Tree is one node of the routing table.
type Tree struct {
	// Segment is the literal path segment this node matches.
	Segment string

	// HasPathParam stops descent: any path continuing past Segment
	// resolves to this node's routes.
	HasPathParam bool

	// Subtrees maps the next literal segment to its node.
	Subtrees map[string]*Tree

	// Routes maps HTTP methods to their encryption policy.
	Routes map[string]EncryptedRoute
}

// Traverse resolves a request path against the tree rooted at t. It returns
// the method table of the matched node, or nil when no node matches
// (pass-through).
func (t *Tree) Traverse(path string) map[string]EncryptedRoute {
	path = strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")

	if path == t.Segment {
		return t.Routes
	}
	if t.HasPathParam && strings.HasPrefix(path, t.Segment) {
		return t.Routes
	}

	next := strings.TrimPrefix(path, t.Segment+"/")
	nextSegment, _, _ := strings.Cut(next, "/")
	subtree, ok := t.Subtrees[nextSegment]
	if !ok {
		return nil
	}
	return subtree.Traverse(next)
}

// Lookup resolves a (method, path) pair to its policy.
func (t *Tree) Lookup(method, path string) (EncryptedRoute, bool) {
	routes := t.Traverse(path)
	if routes == nil {
		return EncryptedRoute{}, false
	}
	route, ok := routes[method]
	return route, ok
}

// Default is the server's routing table: file transfer and vault-key routes
// are encrypted in both directions, as is the client's encryption self-test
// route.
func Default() *Tree {
	return &Tree{
		Segment: "api",
		Subtrees: map[string]*Tree{
			"auth": {
				Segment: "auth",
				Subtrees: map[string]*Tree{
					"pop-demo": {
						Segment: "pop-demo",
						Subtrees: map[string]*Tree{
							"encrypted": {
								Segment: "encrypted",
								Routes: map[string]EncryptedRoute{
									http.MethodPost: DefaultRoute(),
								},
							},
						},
					},
				},
			},
			"files": {
				Segment: "files",
				Subtrees: map[string]*Tree{
					"list": {
						Segment:      "list",
						HasPathParam: true,
						Routes: map[string]EncryptedRoute{
							http.MethodGet: DefaultRoute(),
						},
					},
					"upload": {
						Segment:      "upload",
						HasPathParam: true,
						Routes: map[string]EncryptedRoute{
							http.MethodPost: DefaultRoute(),
						},
					},
					"mkdir": {
						Segment:      "mkdir",
						HasPathParam: true,
						Routes: map[string]EncryptedRoute{
							http.MethodPost: DefaultRoute(),
						},
					},
					"download": {
						Segment:      "download",
						HasPathParam: true,
						Routes: map[string]EncryptedRoute{
							http.MethodGet: DefaultRoute(),
						},
					},
				},
			},
			"users": {
				Segment: "users",
				Subtrees: map[string]*Tree{
					"vault": {
						Segment:      "vault",
						HasPathParam: true,
						Routes: map[string]EncryptedRoute{
							http.MethodGet: DefaultRoute(),
						},
					},
				},
			},
		},
	}
}
