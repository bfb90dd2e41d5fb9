package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "uuid",
			in:   "session 550e8400-e29b-41d4-a716-446655440000 expired",
			want: "session <ID> expired",
		},
		{
			name: "bare 32-char hex",
			in:   "trace 0123456789abcdef0123456789abcdef not found",
			want: "trace <ID> not found",
		},
		{
			name: "iso timestamp",
			in:   "deadline was 2024-03-01T12:34:56Z",
			want: "deadline was <TS>",
		},
		{
			name: "timestamp with millis and offset",
			in:   "at 2024-03-01T12:34:56.123+02:00 request aborted",
			want: "at <TS> request aborted",
		},
		{
			name: "ipv4",
			in:   "dial tcp 10.1.2.3: connection refused",
			want: "dial tcp <IP>: connection refused",
		},
		{
			name: "long number",
			in:   "expected order 1234567 to exist",
			want: "expected order <NUM> to exist",
		},
		{
			name: "short numbers survive",
			in:   "expected 2 rows got 3",
			want: "expected 2 rows got 3",
		},
		{
			name: "ip not eaten by number rule",
			in:   "host 192.168.100.200 unreachable",
			want: "host <IP> unreachable",
		},
		{
			name: "mixed",
			in:   "user 550e8400-e29b-41d4-a716-446655440000 at 2024-03-01T12:34:56Z from 10.0.0.1 order 99881122",
			want: "user <ID> at <TS> from <IP> order <NUM>",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	in := "node 550e8400-e29b-41d4-a716-446655440000 at 10.0.0.1 failed at 2024-01-01T00:00:00Z run 123456"
	first := Normalize(in)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Normalize(in))
	}
}

func TestNormalize_IdenticalErrorsConverge(t *testing.T) {
	a := "timeout waiting for 10.0.0.1 after request 1234567 at 2024-03-01T10:00:00Z"
	b := "timeout waiting for 192.168.4.7 after request 7654321 at 2024-04-02T11:30:00Z"
	assert.Equal(t, Normalize(a), Normalize(b))
}
