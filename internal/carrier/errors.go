package carrier

import "fmt"

// errPayloadTooLarge reports that an envelope exceeds a carrier's MaxPayload.
func errPayloadTooLarge(size, max int) error {
	return fmt.Errorf("carrier: envelope of %d bytes exceeds max payload %d", size, max)
}
