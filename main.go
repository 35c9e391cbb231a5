// SPDX-License-Identifier: MPL-2.0

package main

import "clash-launcher/cmd/launcher"

func main() {
	cmd.Execute()
}
