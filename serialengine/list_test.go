package serialengine

import (
	"reflect"
	"testing"
)

func TestListUnixFiltersByPlatformGlob(t *testing.T) {
	fakeGlob := func(pattern string) ([]string, error) {
		switch pattern {
		case "/dev/ttyUSB*":
			return []string{"/dev/ttyUSB0", "/dev/ttyUSB1"}, nil
		case "/dev/ttyACM*":
			return []string{"/dev/ttyACM0"}, nil
		default:
			return nil, nil
		}
	}
	ports, err := listUnix(fakeGlob)
	if err != nil {
		t.Fatalf("listUnix: %v", err)
	}
	if len(ports) != 3 {
		t.Fatalf("got %d ports, want 3: %+v", len(ports), ports)
	}
	names := []string{ports[0].Name, ports[1].Name, ports[2].Name}
	want := []string{"/dev/ttyACM0", "/dev/ttyUSB0", "/dev/ttyUSB1"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("names = %v, want %v (sorted)", names, want)
	}
}

func TestNormalizeProductStringStripsComSuffix(t *testing.T) {
	cases := map[string]string{
		"USB Serial Port (COM4)": "USB Serial Port",
		"FTDI FT232R (COM12)":    "FTDI FT232R",
		"No suffix here":         "No suffix here",
	}
	for in, want := range cases {
		if got := NormalizeProductString(in); got != want {
			t.Errorf("NormalizeProductString(%q) = %q, want %q", in, got, want)
		}
	}
}
