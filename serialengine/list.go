package serialengine

import (
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"

	"github.com/vienkmt/commscore/common"
)

// windowsComSuffix matches the trailing " (COMn)" suffix Windows appends to
// USB product strings, stripped for display. Ref: spec.md §4.2 List operation.
var windowsComSuffix = regexp.MustCompile(`\s*\(COM\d+\)\s*$`)

// unixGlobPatterns are the device-node globs searched per platform.
var unixGlobPatterns = map[string][]string{
	"linux":  {"/dev/ttyUSB*", "/dev/ttyACM*", "/dev/ttyS*"},
	"darwin": {"/dev/tty.*"},
}

// List enumerates the serial device nodes matching this platform's glob
// patterns, sorted by name; on Windows it returns an empty list. It reads
// no product strings, so no "(COMn)" suffix is stripped here (see
// NormalizeProductString). glob is injected for testability; production
// callers should pass filepath.Glob.
func List(glob func(pattern string) ([]string, error)) ([]common.SerialPortDescriptor, error) {
	if runtime.GOOS == "windows" {
		return listWindows()
	}
	return listUnix(glob)
}

func listUnix(glob func(string) ([]string, error)) ([]common.SerialPortDescriptor, error) {
	patterns, ok := unixGlobPatterns[runtime.GOOS]
	if !ok {
		patterns = unixGlobPatterns["linux"]
	}
	var out []common.SerialPortDescriptor
	for _, pattern := range patterns {
		matches, err := glob(pattern)
		if err != nil {
			return nil, err
		}
		for _, path := range matches {
			out = append(out, common.SerialPortDescriptor{
				Name:     path,
				PortType: filepath.Base(path),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// listWindows is a stub: real enumeration requires the Windows setupapi,
// which has no presence anywhere in the example corpus to ground an
// implementation on. See DESIGN.md.
func listWindows() ([]common.SerialPortDescriptor, error) {
	return nil, nil
}

// NormalizeProductString strips the Windows "(COMn)" suffix a USB product
// descriptor carries, leaving other platforms' strings untouched.
func NormalizeProductString(product string) string {
	return strings.TrimSpace(windowsComSuffix.ReplaceAllString(product, ""))
}
