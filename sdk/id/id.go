// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package id

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-uuid"
)

// Len is the length of a generated id, without its prefix.
const Len = 32

// New generates a random id with an optional prefix.  The id is the 32 hex
// characters of a v4 uuid without dashes, which makes it suitable as an oidc
// state, nonce or request id.
func New(optionalPrefix string) (string, error) {
	const op = "id.New"
	u, err := uuid.GenerateUUID()
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, err)
	}
	id := strings.ReplaceAll(u, "-", "")
	switch {
	case optionalPrefix != "":
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	default:
		return id, nil
	}
}
