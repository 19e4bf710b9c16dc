package metrics

import "testing"

// TestClassifyError verifies error messages map to bounded result classes.
func TestClassifyError(t *testing.T) {
	tests := []struct {
		msg  string
		want string
	}{
		{"handler timeout after 30s", ResultTimeout},
		{"context deadline exceeded", ResultTimeout},
		{"handler panic: index out of range", ResultPanic},
		{"unknown target module: \"ghost\"", ResultUnknownModule},
		{"circuit breaker is open", ResultCircuitOpen},
		{"module rejected the request", ResultFailed},
		{"", ResultFailed},
	}

	for _, tt := range tests {
		t.Run(tt.want+"/"+tt.msg, func(t *testing.T) {
			if got := ClassifyError(tt.msg); got != tt.want {
				t.Errorf("ClassifyError(%q) = %q, want %q", tt.msg, got, tt.want)
			}
		})
	}
}
