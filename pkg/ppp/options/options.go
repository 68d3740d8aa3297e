// Package options provides the LCP configuration option handlers defined in
// RFC 1661 Section 6: Maximum-Receive-Unit, Authentication-Protocol,
// Magic-Number, Protocol-Field-Compression and Address-and-Control-Field-
// Compression.
package options

import (
	"errors"
	"fmt"

	"github.com/codelaboratoryltd/ppp/pkg/ppp"
)

var (
	// ErrDuplicateOption is returned when a request carries an option twice.
	ErrDuplicateOption = errors.New("duplicate option")

	// ErrAuthRejected is returned when the peer rejects a required
	// authentication protocol.
	ErrAuthRejected = errors.New("authentication protocol rejected")

	// ErrHandlerExists is returned by Register for a second handler of the
	// same option type.
	ErrHandlerExists = errors.New("option handler already registered")
)

// Register adds handlers to l.
func Register(l *ppp.LCP, handlers ...ppp.OptionHandler) error {
	for _, h := range handlers {
		if !l.AddOptionHandler(h) {
			return fmt.Errorf("%w: %s", ErrHandlerExists, h.Name())
		}
	}
	return nil
}

// itemAt returns the item at index and fails if the request carries its type
// more than once.
func itemAt(req *ppp.ConfigurePacket, index int) (ppp.ConfigureItem, error) {
	item, err := req.ItemAt(index)
	if err != nil {
		return item, err
	}
	if n := req.CountItemsWithType(item.Type); n > 1 {
		return item, fmt.Errorf("%w: type %d appears %d times", ErrDuplicateOption, item.Type, n)
	}
	return item, nil
}

func malformed(name string, length int) error {
	return fmt.Errorf("%w: %s option with %d data bytes", ppp.ErrMalformedPacket, name, length)
}
