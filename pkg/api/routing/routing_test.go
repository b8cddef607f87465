package routing

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraverse_Default(t *testing.T) {
	tree := Default()

	cases := []struct {
		path    string
		methods []string
	}{
		{"/api/files/list/", []string{http.MethodGet}},
		{"/api/files/list/some/nested/dir", []string{http.MethodGet}},
		{"/api/files/upload/file.exef", []string{http.MethodPost}},
		{"/api/files/mkdir/newdir", []string{http.MethodPost}},
		{"/api/files/download/file.exef", []string{http.MethodGet}},
		{"/api/users/vault/alice", []string{http.MethodGet}},
		{"/api/auth/pop-demo/encrypted", []string{http.MethodPost}},
	}
	for _, c := range cases {
		routes := tree.Traverse(c.path)
		require.NotNil(t, routes, "path %s", c.path)
		for _, m := range c.methods {
			route, ok := routes[m]
			require.True(t, ok, "path %s method %s", c.path, m)
			assert.True(t, route.EncryptedBody)
			assert.True(t, route.EncryptedResponse)
			assert.Equal(t, []int{http.StatusUnauthorized}, route.ExcludedStatuses)
		}
	}
}

func TestTraverse_PassThrough(t *testing.T) {
	tree := Default()

	for _, path := range []string{
		"/api/well-known/heartbeat",
		"/api/auth",
		"/api/auth/pop-demo",
		"/api/users/add/alice",
		"/api/users/security/alice",
		"/api/files",
		"/metrics",
		"/",
		"",
	} {
		assert.Nil(t, tree.Traverse(path), "path %s", path)
	}
}

func TestTraverse_MethodScoped(t *testing.T) {
	tree := Default()

	_, ok := tree.Lookup(http.MethodGet, "/api/files/list/dir")
	assert.True(t, ok)
	_, ok = tree.Lookup(http.MethodPost, "/api/files/list/dir")
	assert.False(t, ok)
	_, ok = tree.Lookup(http.MethodGet, "/api/auth/pop-demo/encrypted")
	assert.False(t, ok)
}

func TestTraverse_PathParamStopsDescent(t *testing.T) {
	tree := &Tree{
		Segment:      "files",
		HasPathParam: true,
		Routes:       map[string]EncryptedRoute{http.MethodGet: DefaultRoute()},
		Subtrees: map[string]*Tree{
			"never": {Segment: "never"},
		},
	}

	// The param flag wins over any subtree.
	routes := tree.Traverse("/files/never/reached")
	require.NotNil(t, routes)
	_, ok := routes[http.MethodGet]
	assert.True(t, ok)
}

func TestTraverse_TrailingSlash(t *testing.T) {
	tree := Default()

	with := tree.Traverse("/api/auth/pop-demo/encrypted/")
	without := tree.Traverse("/api/auth/pop-demo/encrypted")
	assert.Equal(t, without, with)
}

func TestExcludes(t *testing.T) {
	route := DefaultRoute()
	assert.True(t, route.Excludes(http.StatusUnauthorized))
	assert.False(t, route.Excludes(http.StatusOK))
	assert.False(t, route.Excludes(http.StatusNotFound))

	custom := EncryptedRoute{ExcludedStatuses: []int{404, 401}}
	assert.True(t, custom.Excludes(404))
}

func TestTraverse_Deterministic(t *testing.T) {
	tree := Default()
	for i := 0; i < 100; i++ {
		routes := tree.Traverse("/api/files/download/a/b/c")
		require.NotNil(t, routes)
	}
}
