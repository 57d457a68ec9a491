package dispatcher

import "github.com/vienkmt/commscore/common"

// decodePayload turns a command's payload string into bytes, hex-decoding it
// tolerantly when isHex is set and treating it as raw text otherwise.
func decodePayload(payload string, isHex bool) []byte {
	if isHex {
		return common.ParseHexTolerant(payload)
	}
	return []byte(payload)
}
