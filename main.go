package main

import "github.com/vibast-solutions/ms-go-wallet-payments/cmd"

func main() {
	cmd.Execute()
}
