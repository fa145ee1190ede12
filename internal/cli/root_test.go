package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "sqlitekit", cmd.Use)
	assert.Contains(t, cmd.Long, "write connection")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"exec", "query", "page", "tx", "watch", "remove", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, "c", configFlag.Shorthand)

	require.NotNil(t, cmd.PersistentFlags().Lookup("db"))
	require.NotNil(t, cmd.PersistentFlags().Lookup("metrics"))
}

func TestPageCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	pageCmd, _, err := cmd.Find([]string{"page"})
	require.NoError(t, err)

	sizeFlag := pageCmd.Flags().Lookup("size")
	require.NotNil(t, sizeFlag)
	assert.Equal(t, "n", sizeFlag.Shorthand)
	assert.Equal(t, "20", sizeFlag.DefValue)

	keysetFlag := pageCmd.Flags().Lookup("keyset")
	require.NotNil(t, keysetFlag)
	assert.Equal(t, "k", keysetFlag.Shorthand)
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "", "query", "--db", "x.db", "--format", "yaml", "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}
