package main

import "credit_ledger/internal/cli"

func main() {
	cli.Execute()
}
