package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const captures = `captures:
  - userId: user-1
    orderId: order_1
    paymentId: pay_1
    eventNames: [Code Relay]
    amount: 10000
`

func execute(t *testing.T, cmd *cobra.Command, v *viper.Viper, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	root := &cobra.Command{
		Use:           "regctl",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			return loadConfig(v, c)
		},
	}
	flags := root.PersistentFlags()
	flags.String("config", "", "")
	flags.String("store", "bolt", "")
	flags.String("bolt-path", "eventpay.db", "")
	flags.String("database-url", "", "")
	flags.String("catalog", "", "")
	root.AddCommand(cmd)
	root.SetOut(&out)
	root.SetArgs(args)
	require.NoError(t, root.Execute())
	return out.String()
}

func TestReplayShowAndOutbox(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "regs.db")
	file := filepath.Join(dir, "captures.yaml")
	require.NoError(t, os.WriteFile(file, []byte(captures), 0o600))

	v := viper.New()
	out := execute(t, replayCmd(v), v, "replay", "--bolt-path", db, "--file", file)
	assert.Contains(t, out, "applied:    1")

	v = viper.New()
	out = execute(t, replayCmd(v), v, "replay", "--bolt-path", db, "--file", file)
	assert.Contains(t, out, "duplicates: 1")

	v = viper.New()
	out = execute(t, showCmd(v), v, "show", "--bolt-path", db, "user-1")
	assert.Contains(t, out, `"paymentId": "pay_1"`)
	assert.Contains(t, out, `"trust": "fallback"`)

	v = viper.New()
	out = execute(t, outboxCmd(v), v, "outbox", "--bolt-path", db)
	assert.Equal(t, "pending: 1\n", out)
}

func TestCatalogCommand(t *testing.T) {
	v := viper.New()
	out := execute(t, catalogCmd(v), v, "catalog")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[0], "PRICE (INR)")
	assert.Contains(t, out, "Thesis Precised")
}
