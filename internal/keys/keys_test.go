package keys

import "testing"

func TestModifierFor(t *testing.T) {
	tests := []struct {
		name string
		code int
		want Modifiers
	}{
		{name: "left shift", code: VKLShift, want: Shift},
		{name: "right shift", code: VKRShift, want: Shift},
		{name: "generic shift", code: VKShift, want: Shift},
		{name: "left control", code: VKLControl, want: Control},
		{name: "right control", code: VKRControl, want: Control},
		{name: "generic control", code: VKControl, want: Control},
		{name: "left alt", code: VKLMenu, want: Alt},
		{name: "right alt", code: VKRMenu, want: Alt},
		{name: "generic alt", code: VKMenu, want: Alt},
		{name: "left win", code: VKLWin, want: Win},
		{name: "right win", code: VKRWin, want: Win},
		{name: "letter", code: 'A', want: None},
		{name: "escape", code: VKEscape, want: None},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ModifierFor(tt.code); got != tt.want {
				t.Fatalf("ModifierFor(0x%02X) = %v, want %v", tt.code, got, tt.want)
			}
			if got := IsModifier(tt.code); got != (tt.want != None) {
				t.Fatalf("IsModifier(0x%02X) = %v", tt.code, got)
			}
		})
	}
}

func TestModifiersString(t *testing.T) {
	tests := []struct {
		mods Modifiers
		want string
	}{
		{None, ""},
		{Control, "CTRL"},
		{Win | Control, "CTRL+WIN"},
		{Shift | Alt | Control | Win, "CTRL+ALT+SHIFT+WIN"},
	}
	for _, tt := range tests {
		if got := tt.mods.String(); got != tt.want {
			t.Errorf("Modifiers(%d).String() = %q, want %q", tt.mods, got, tt.want)
		}
	}
}

func TestGeneric(t *testing.T) {
	tests := []struct {
		code, want int
	}{
		{VKLShift, VKShift},
		{VKRShift, VKShift},
		{VKRControl, VKControl},
		{VKMenu, VKMenu},
		{VKRWin, VKRWin},
		{'Q', 'Q'},
	}
	for _, tt := range tests {
		if got := Generic(tt.code); got != tt.want {
			t.Errorf("Generic(0x%02X) = 0x%02X, want 0x%02X", tt.code, got, tt.want)
		}
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		token   string
		want    int
		wantErr bool
	}{
		{token: "a", want: 'A'},
		{token: "1", want: '1'},
		{token: "Left", want: VKLeft},
		{token: "esc", want: VKEscape},
		{token: "Space", want: VKSpace},
		{token: "F1", want: VKF1},
		{token: "F24", want: VKF24},
		{token: "LShift", want: VKLShift},
		{token: "=", want: VKOEMPlus},
		{token: "Plus", want: VKOEMPlus},
		{token: "0xBB", want: VKOEMPlus},
		{token: "", wantErr: true},
		{token: "F25", wantErr: true},
		{token: "0x00", wantErr: true},
		{token: "0x1FF", wantErr: true},
		{token: "Hyper", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.token, func(t *testing.T) {
			got, err := ParseKey(tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKey(%q) expected error, got 0x%02X", tt.token, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseKey(%q) unexpected error: %v", tt.token, err)
			}
			if got != tt.want {
				t.Fatalf("ParseKey(%q) = 0x%02X, want 0x%02X", tt.token, got, tt.want)
			}
		})
	}
}

func TestKeyNameRoundTrip(t *testing.T) {
	codes := []int{'A', 'Z', '0', '9', VKLeft, VKEscape, VKSpace, VKF1, VKF24, VKLShift, VKRWin, VKOEMPlus, VKOEM5}
	for _, code := range codes {
		name := KeyName(code)
		got, err := ParseKey(name)
		if err != nil {
			t.Fatalf("ParseKey(KeyName(0x%02X)=%q) error: %v", code, name, err)
		}
		if got != code {
			t.Fatalf("ParseKey(%q) = 0x%02X, want 0x%02X", name, got, code)
		}
	}
	if got := KeyName(0xE7); got != "0xE7" {
		t.Fatalf("KeyName(0xE7) = %q, want 0xE7", got)
	}
}
