package main

import (
	"bytes"
	"context"
	"net/http"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/swcache"
)

func TestCollectAndPrint(t *testing.T) {
	ctx := context.Background()
	st := swcache.NewMemoryStorage(nil, nil)
	defer st.Close(ctx)
	require.NoError(t, st.Open(ctx, "dovini-static-v1"))
	resp := &swcache.Response{Status: http.StatusOK, Body: []byte("x")}
	require.NoError(t, st.Put(ctx, "dovini-cache-v1", "GET https://shop.test/a.js", resp))
	require.NoError(t, st.Put(ctx, "dovini-cache-v1", "GET https://shop.test/b.css", resp))

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)
	dump, err := collect(cmd, st, nil)
	require.NoError(t, err)
	require.Len(t, dump, 2)
	assert.Equal(t, "dovini-static-v1", dump[0].Name)
	assert.Empty(t, dump[0].Keys)
	assert.Len(t, dump[1].Keys, 2)

	var buf bytes.Buffer
	require.NoError(t, printDump(&buf, dump))
	out := buf.String()
	assert.Contains(t, out, "NAMESPACE")
	assert.Regexp(t, `dovini-cache-v1\s+2\s+GET https://shop.test/a.js`, out)
	assert.Contains(t, out, "GET https://shop.test/b.css")

	buf.Reset()
	require.NoError(t, printDump(&buf, nil))
	assert.Equal(t, "no namespaces\n", buf.String())
}
