// toolwarden checks agent tool calls against firewall rules, accounts for
// every call and writes a receipt per unit of work.
package main

import "github.com/ppiankov/toolwarden/internal/cli"

func main() {
	cli.Execute()
}
