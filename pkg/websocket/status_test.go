package websocket

import "testing"

func TestStatusCodeValidForSend(t *testing.T) {
	tests := []struct {
		name string
		code StatusCode
		want bool
	}{
		{"normal closure", StatusNormalClosure, true},
		{"going away", StatusGoingAway, true},
		{"below range", StatusCode(999), false},
		{"reserved 1004", StatusCode(1004), false},
		{"no status received is report-only, rejected", StatusNoStatusReceived, false},
		{"abnormal closure is report-only, rejected", StatusAbnormalClosure, false},
		{"TLS handshake failure is report-only, rejected", StatusTLSHandshake, false},
		{"reserved 1013", StatusCode(1013), false},
		{"application defined", StatusCode(4000), true},
		{"above range", StatusCode(5000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.code.validForSend(); got != tt.want {
				t.Errorf("validForSend(%d) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestSendableCode(t *testing.T) {
	tests := []struct {
		in, want StatusCode
	}{
		{StatusNoStatusReceived, StatusNormalClosure},
		{StatusAbnormalClosure, StatusNormalClosure},
		{StatusTLSHandshake, StatusNormalClosure},
		{StatusGoingAway, StatusGoingAway},
	}
	for _, tt := range tests {
		if got := sendableCode(tt.in); got != tt.want {
			t.Errorf("sendableCode(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidReceivedCode(t *testing.T) {
	tests := []struct {
		code uint16
		want bool
	}{
		{999, false},
		{1000, true},
		{1004, false},
		{1005, false},
		{1006, false},
		{1011, true},
		{1012, false},
		{2999, false},
		{3000, true},
		{4999, true},
		{5000, false},
	}
	for _, tt := range tests {
		if got := validReceivedCode(tt.code); got != tt.want {
			t.Errorf("validReceivedCode(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}
