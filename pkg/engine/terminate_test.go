package engine

import (
	"testing"

	"github.com/me-shivamo/ScamRakshak/pkg/intel"
)

func TestShouldEnd(t *testing.T) {
	fullIntel := intel.Record{
		PhoneNumbers: []string{"9876543210"},
		UPIIDs:       []string{"fraud@ybl"},
	}
	tests := []struct {
		name    string
		message string
		total   int
		rec     intel.Record
		want    bool
	}{
		{
			name:    "below minimum even with full intel and end phrase",
			message: "bye, going to police",
			total:   8,
			rec:     fullIntel,
			want:    false,
		},
		{
			name:    "still below minimum at nine",
			message: "stop messaging",
			total:   9,
			rec:     fullIntel,
			want:    false,
		},
		{
			name:    "two high value categories at minimum",
			message: "send it fast",
			total:   10,
			rec:     fullIntel,
			want:    true,
		},
		{
			name:    "one high value category keeps going",
			message: "send it fast",
			total:   12,
			rec:     intel.Record{UPIIDs: []string{"fraud@ybl"}},
			want:    false,
		},
		{
			name:    "keywords alone are not high value",
			message: "ok ji",
			total:   14,
			rec:     intel.Record{SuspiciousKeywords: []string{"otp", "urgent", "lottery"}},
			want:    false,
		},
		{
			name:    "farewell signal",
			message: "ok bye",
			total:   12,
			want:    true,
		},
		{
			name:    "suspicion signal",
			message: "I think you are fake, stop messaging me",
			total:   12,
			want:    true,
		},
		{
			name:    "threat signal",
			message: "this is harassment, I am calling police",
			total:   12,
			want:    true,
		},
		{
			name:    "signal matches case insensitively",
			message: "STOP TALKING",
			total:   12,
			want:    true,
		},
		{
			name:    "benign message keeps going",
			message: "please share the otp quickly madam",
			total:   24,
			want:    false,
		},
		{
			name:    "cap boundary stays open",
			message: "hello",
			total:   25,
			want:    false,
		},
		{
			name:    "past cap always ends",
			message: "hello",
			total:   26,
			want:    true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldEnd(tt.message, tt.total, tt.rec); got != tt.want {
				t.Errorf("ShouldEnd(%q, %d) = %v, want %v", tt.message, tt.total, got, tt.want)
			}
		})
	}
}
