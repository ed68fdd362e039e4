package main

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/storefront-ai/migrations"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		cmd     string
		arg     int
		wantErr bool
	}{
		{name: "default up", args: nil, cmd: "up"},
		{name: "explicit up", args: []string{"up"}, cmd: "up"},
		{name: "down defaults to one step", args: []string{"down"}, cmd: "down", arg: 1},
		{name: "down steps", args: []string{"down", "3"}, cmd: "down", arg: 3},
		{name: "down rejects zero", args: []string{"down", "0"}, wantErr: true},
		{name: "force version", args: []string{"force", "2"}, cmd: "force", arg: 2},
		{name: "force needs version", args: []string{"force"}, wantErr: true},
		{name: "version", args: []string{"version"}, cmd: "version"},
		{name: "unknown", args: []string{"sideways"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, arg, err := parseArgs(tt.args)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.cmd, cmd)
			assert.Equal(t, tt.arg, arg)
		})
	}
}

func TestRunRequiresDatabaseURL(t *testing.T) {
	require.Error(t, run("", nil, nil))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.Glob(migrations.FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range entries {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}
