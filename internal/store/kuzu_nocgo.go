//go:build !cgo

package store

import "errors"

func openKuzuStore(string) (Store, error) {
	return nil, errors.New("kuzu: store requires a cgo-enabled build")
}
