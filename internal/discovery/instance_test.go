package discovery

import (
	"strings"
	"testing"
)

func TestDeviceIDFromMAC(t *testing.T) {
	tests := []struct {
		name string
		mac  string
	}{
		{"lower", "aa:bb:cc:dd:ee:ff"},
		{"upper", "AA:BB:CC:DD:EE:FF"},
	}
	want := deviceIDFromMAC("aa:bb:cc:dd:ee:ff")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := deviceIDFromMAC(tt.mac)
			if got != want {
				t.Errorf("deviceIDFromMAC(%q) = %q, want %q", tt.mac, got, want)
			}
			if !strings.HasPrefix(got, "RESTOPOS-") || len(got) != len("RESTOPOS-")+8 {
				t.Errorf("unexpected format %q", got)
			}
		})
	}

	if got := deviceIDFromMAC(""); got != unknownDevice {
		t.Errorf("empty mac = %q, want %q", got, unknownDevice)
	}
}
