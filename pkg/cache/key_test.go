package cache

import (
	"testing"
)

func TestKey_String(t *testing.T) {
	tests := []struct {
		name string
		key  Key
		want string
	}{
		{
			name: "basic key",
			key:  Key{Carrier: "colissimo", TrackingNumber: "FR123456789AB"},
			want: "pod:colissimo:FR123456789AB",
		},
		{
			name: "carrier normalized to lowercase",
			key:  Key{Carrier: "Chronopost", TrackingNumber: "XP123456789FR"},
			want: "pod:chronopost:XP123456789FR",
		},
		{
			name: "whitespace trimmed",
			key:  Key{Carrier: " ups ", TrackingNumber: " 1Z999AA10123456784 "},
			want: "pod:ups:1Z999AA10123456784",
		},
		{
			name: "tracking case preserved",
			key:  Key{Carrier: "dhl", TrackingNumber: "jd014600003456"},
			want: "pod:dhl:jd014600003456",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKey_String_Deterministic(t *testing.T) {
	a := Key{Carrier: "Colissimo", TrackingNumber: "FR123456789AB"}
	b := Key{Carrier: "colissimo", TrackingNumber: "FR123456789AB"}

	if a.String() != b.String() {
		t.Errorf("equivalent keys produced different strings: %q vs %q", a.String(), b.String())
	}
}
