package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		allowed []string
		want    []string
	}{
		{
			name:    "separate value",
			args:    []string{"-c", "conf.json", "-a", "localhost"},
			allowed: []string{"-c"},
			want:    []string{"-c", "conf.json"},
		},
		{
			name:    "equals form",
			args:    []string{"-config=alt.json", "-a", "localhost"},
			allowed: []string{"-config"},
			want:    []string{"-config=alt.json"},
		},
		{
			name:    "unknown flags and positionals dropped",
			args:    []string{"-x", "1", "-y=2", "create-user"},
			allowed: []string{"-c"},
			want:    []string{},
		},
		{
			name:    "trailing flag without value",
			args:    []string{"-c"},
			allowed: []string{"-c"},
			want:    []string{"-c"},
		},
		{
			name:    "next flag is not a value",
			args:    []string{"-c", "-config=alt.json"},
			allowed: []string{"-c", "-config"},
			want:    []string{"-c", "-config=alt.json"},
		},
		{
			name:    "prefix of an allowed flag does not match",
			args:    []string{"-email", "a@b.c", "-e", "http://s3"},
			allowed: []string{"-e"},
			want:    []string{"-e", "http://s3"},
		},
		{
			name:    "repeated flag kept in order",
			args:    []string{"-c", "one.json", "-c", "two.json"},
			allowed: []string{"-c"},
			want:    []string{"-c", "one.json", "-c", "two.json"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowed))
		})
	}
}

func TestConfigPath(t *testing.T) {
	assert.Equal(t, "/etc/pk/short.json", ConfigPath([]string{"-c", "/etc/pk/short.json"}))
	assert.Equal(t, "/etc/pk/long.json", ConfigPath([]string{"-a", ":50051", "-config", "/etc/pk/long.json"}))
	assert.Equal(t, "/etc/pk/2.json", ConfigPath([]string{"-c", "/etc/pk/1.json", "-config=/etc/pk/2.json"}))
	assert.Empty(t, ConfigPath([]string{"-x", "1", "migrate"}))
	assert.Empty(t, ConfigPath(nil))
}

func TestSplitCommand(t *testing.T) {
	commands := []string{"migrate", "create-user"}

	global, cmd, rest := SplitCommand([]string{"-c", "pk.json", "create-user", "-name", "bob"}, commands)
	assert.Equal(t, []string{"-c", "pk.json"}, global)
	assert.Equal(t, "create-user", cmd)
	assert.Equal(t, []string{"-name", "bob"}, rest)

	global, cmd, rest = SplitCommand([]string{"-d", "x"}, commands)
	assert.Equal(t, []string{"-d", "x"}, global)
	assert.Empty(t, cmd)
	assert.Nil(t, rest)
}
