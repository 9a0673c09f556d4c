package mif

import "errors"

var errNotBuilt = errors.New("mif: index has not been built")
