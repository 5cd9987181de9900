// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 dtn6-go contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package bpv6

// Valid is implemented by types which can be checked for erroneous values.
type Valid interface {
	// CheckValid returns an error for incorrect data. Multiple problems are
	// combined into a multierror.
	CheckValid() error
}
