package slurm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandNodeList(t *testing.T) {
	tests := []struct {
		name string
		expr string
		want []string
	}{
		{
			name: "single node",
			expr: "gpu001",
			want: []string{"gpu001"},
		},
		{
			name: "plain list",
			expr: "gpu001,gpu002",
			want: []string{"gpu001", "gpu002"},
		},
		{
			name: "bracket range",
			expr: "gpu[001-003]",
			want: []string{"gpu001", "gpu002", "gpu003"},
		},
		{
			name: "range and singleton mixed",
			expr: "gpu[001-002,007]",
			want: []string{"gpu001", "gpu002", "gpu007"},
		},
		{
			name: "multiple groups",
			expr: "gpu[001-002],login1,dgx[10-11]",
			want: []string{"gpu001", "gpu002", "login1", "dgx10", "dgx11"},
		},
		{
			name: "padding follows first bound",
			expr: "n[8-10]",
			want: []string{"n8", "n9", "n10"},
		},
		{
			name: "suffix after brackets",
			expr: "rack[1-2]-gpu",
			want: []string{"rack1-gpu", "rack2-gpu"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandNodeList(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpandNodeListErrors(t *testing.T) {
	tests := []struct {
		name string
		expr string
	}{
		{name: "empty", expr: ""},
		{name: "whitespace", expr: "   "},
		{name: "unbalanced brackets", expr: "gpu[001"},
		{name: "non-numeric range", expr: "gpu[a-b]"},
		{name: "descending range", expr: "gpu[5-2]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExpandNodeList(tt.expr)
			assert.Error(t, err)
		})
	}
}

func TestJobIDFromEnv(t *testing.T) {
	t.Setenv("SLURM_JOB_ID", "98765")

	id, err := JobID()
	require.NoError(t, err)
	assert.Equal(t, "98765", id)
}

func TestJobIDLegacyVariable(t *testing.T) {
	t.Setenv("SLURM_JOB_ID", "")
	t.Setenv("SLURM_JOBID", "4242")

	id, err := JobID()
	require.NoError(t, err)
	assert.Equal(t, "4242", id)
}

func TestJobIDMissing(t *testing.T) {
	t.Setenv("SLURM_JOB_ID", "")
	t.Setenv("SLURM_JOBID", "")

	_, err := JobID()
	assert.Error(t, err)
}

func TestNodeListFromEnv(t *testing.T) {
	t.Setenv("SLURM_JOB_NODELIST", "gpu[001-002]")

	nodes, err := NodeList()
	require.NoError(t, err)
	assert.Equal(t, []string{"gpu001", "gpu002"}, nodes)
}

func TestParseSubmitOutput(t *testing.T) {
	tests := []struct {
		name    string
		out     string
		want    string
		wantErr bool
	}{
		{name: "parsable", out: "12345\n", want: "12345"},
		{name: "parsable with cluster", out: "12345;cluster-a\n", want: "12345"},
		{name: "sentence form", out: "Submitted batch job 67890\n", want: "67890"},
		{name: "garbage", out: "sbatch: error: invalid partition\n", wantErr: true},
		{name: "empty", out: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseSubmitOutput(tt.out)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
