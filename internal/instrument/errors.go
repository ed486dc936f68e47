package instrument

import "errors"

var errClosed = errors.New("rig closed")

// IsClosed reports whether an error came from a closed rig.
func IsClosed(err error) bool {
	return errors.Is(err, errClosed)
}
