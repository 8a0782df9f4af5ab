// Command licensorctl is offline operator tooling for licensor: it prints
// the effective plan limits, verifies Stripe webhook deliveries and renders
// license snapshots from exported records.
package main

import "github.com/xraph/licensor/internal/cli"

func main() {
	cli.Execute()
}
