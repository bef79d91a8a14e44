package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const checkoutCUE = `
package checkout

name: "checkout"

event: {
	"order.placed": {data: {source: "web"}}
}

action: {
	"order.load": {
		handler:  "emit"
		data:     {id: 1}
		external: true
	}
	"order.charge": {
		handler:  "noop"
		require:  ["order.load"]
		rollback: "record"
		external: true
	}
	"order.audit": {
		handler:  "noop"
		listen:   "order.placed"
		external: true
	}
}

run: ["order.charge"]
`

const failingCUE = `
package failing

name: "failing"

action: {
	"order.load": {handler: "emit", data: {id: 1}, external: true}
	"order.charge": {
		handler:  "noop"
		require:  ["order.load"]
		rollback: "record"
		external: true
	}
	"order.ship": {handler: "panic"}
}

trigger: [{subject: "order.charge", action: "order.ship"}]
run: ["order.charge"]
`

// writeWorkflow writes a single-file CUE workflow into a new directory
// under a temp dir and returns the directory.
func writeWorkflow(t *testing.T, content string) string {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "workflow")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "workflow.cue"), []byte(content), 0644))
	return dir
}
